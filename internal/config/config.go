// Package config holds the settings of a batch run. Settings come from a JSON
// file, command line flags, or both; flags win.
package config

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"BatchMR/internal/logger"
)

// Jobs lists the job names the CLI can run.
var Jobs = []string{"dedup", "rank", "join", "grep"}

const (
	DefaultMaxKey         = 65223
	DefaultSpillThreshold = 100000
)

// Spill configures the on-disk spill store used for large map outputs.
type Spill struct {
	// Parent directory of the store; empty means the system temp dir.
	Dir string `json:"dir"`

	// Pairs a partition buffer may hold before it is spilled. Zero keeps
	// all map output in memory.
	Threshold int `json:"threshold"`

	// Upper bound on spilled bytes; zero means unbounded.
	MaxBytes int64 `json:"max_bytes"`
}

// HDFS configures access to hdfs:// locations.
type HDFS struct {
	// Namenode address host:port. When empty, the address in the location
	// is used.
	Namenode string `json:"namenode"`
	User     string `json:"user"`
}

// Config holds the configuration for one run.
type Config struct {
	Job         string `json:"job"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Reducers    int    `json:"reducers"`
	Workers     int    `json:"workers"`
	MaxKey      int    `json:"max_key"`
	StrictRange bool   `json:"strict_range"`
	KeepOutput  bool   `json:"keep_output"`
	Pattern     string `json:"pattern"`
	LogLevel    string `json:"log_level"`
	StateFile   string `json:"state_file"`
	Spill       Spill  `json:"spill"`
	HDFS        HDFS   `json:"hdfs"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Reducers: 1,
		MaxKey:   DefaultMaxKey,
		LogLevel: "INFO",
		Spill: Spill{
			Threshold: DefaultSpillThreshold,
		},
	}
}

// FromFile returns a new config read from a JSON file. Fields missing from
// the file keep their default values.
func FromFile(file string) (*Config, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", file, err)
	}
	return cfg, nil
}

// BindFlags registers one flag per setting on fs. The current values of c
// are the flag defaults, and parsing fs writes into c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Job, "job", c.Job, "Job to run: dedup, rank, join or grep")
	fs.StringVar(&c.Input, "input", c.Input, "Input file or directory (local path or hdfs://host:port/path)")
	fs.StringVar(&c.Output, "output", c.Output, "Output directory (local path or hdfs://host:port/path)")
	fs.IntVar(&c.Reducers, "reducers", c.Reducers, "Number of reduce partitions")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Concurrent tasks; 0 uses one per CPU")
	fs.IntVar(&c.MaxKey, "max-key", c.MaxKey, "Largest key expected by the rank job")
	fs.BoolVar(&c.StrictRange, "strict-range", c.StrictRange, "Fail the rank job on keys outside [0, max-key]")
	fs.BoolVar(&c.KeepOutput, "keep-output", c.KeepOutput, "Fail instead of clearing a non-empty output directory")
	fs.StringVar(&c.Pattern, "pattern", c.Pattern, "Regular expression for the grep job")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: DEBUG, INFO, WARN or ERROR")
	fs.StringVar(&c.StateFile, "state-file", c.StateFile, "JSON file keeping the history of runs and their tasks")
	fs.StringVar(&c.Spill.Dir, "spill-dir", c.Spill.Dir, "Parent directory of the spill store")
	fs.IntVar(&c.Spill.Threshold, "spill-threshold", c.Spill.Threshold, "Buffered pairs per partition before spilling; 0 disables spilling")
	fs.Int64Var(&c.Spill.MaxBytes, "spill-max-bytes", c.Spill.MaxBytes, "Upper bound on spilled bytes; 0 means unbounded")
	fs.StringVar(&c.HDFS.Namenode, "hdfs-namenode", c.HDFS.Namenode, "HDFS namenode host:port")
	fs.StringVar(&c.HDFS.User, "hdfs-user", c.HDFS.User, "HDFS user name")
}

// Parse builds the configuration from command line arguments. A file named
// by -config is applied first and explicit flags override it.
func Parse(name string, args []string, output io.Writer) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	file := fs.String("config", "", "JSON config file")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if *file == "" {
		return cfg, nil
	}

	cfg, err := FromFile(*file)
	if err != nil {
		return nil, err
	}
	overrides := flag.NewFlagSet(name, flag.ContinueOnError)
	overrides.SetOutput(io.Discard)
	overrides.String("config", "", "")
	cfg.BindFlags(overrides)
	if err := overrides.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a runnable job.
func (c *Config) Validate() error {
	known := false
	for _, j := range Jobs {
		if c.Job == j {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown job %q, want one of %v", c.Job, Jobs)
	}
	if c.Input == "" {
		return fmt.Errorf("input location is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output location is required")
	}
	if c.Reducers <= 0 {
		return fmt.Errorf("reducers must be positive, got %d", c.Reducers)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", c.Workers)
	}
	if c.MaxKey < 0 {
		return fmt.Errorf("max key cannot be negative, got %d", c.MaxKey)
	}
	if c.Job == "grep" && c.Pattern == "" {
		return fmt.Errorf("grep job requires a pattern")
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Spill.Threshold < 0 {
		return fmt.Errorf("spill threshold cannot be negative, got %d", c.Spill.Threshold)
	}
	if c.Spill.MaxBytes < 0 {
		return fmt.Errorf("spill max bytes cannot be negative, got %d", c.Spill.MaxBytes)
	}
	return nil
}
