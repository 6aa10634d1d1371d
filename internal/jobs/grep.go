package jobs

import (
	"fmt"
	"iter"
	"regexp"
	"strings"

	"BatchMR/internal/mapreduce"
	"BatchMR/internal/types"
)

// GrepName is the name of the grep job.
const GrepName = "grep"

// Grep finds the lines matching a pattern and where they occur.
type Grep struct {
	pattern string
	regex   *regexp.Regexp
}

// NewGrep creates a new Grep for pattern.
func NewGrep(pattern string) (*Grep, error) {
	if pattern == "" {
		return nil, fmt.Errorf("grep pattern cannot be empty")
	}
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	return &Grep{
		pattern: pattern,
		regex:   regex,
	}, nil
}

// Map emits (line, "split:line") for matching lines.
func (g *Grep) Map(rec types.Record, emit mapreduce.Emitter[string, string]) error {
	if !g.regex.MatchString(rec.Text) {
		return nil
	}
	return emit.Emit(rec.Text, fmt.Sprintf("%d:%d", rec.Split, rec.Line))
}

// Reduce combines all occurrences of a matched line.
// Format: [split:line, split:line, ...]
func (g *Grep) Reduce(key string, values iter.Seq[string], emit mapreduce.Emitter[string, string]) error {
	var locations []string
	for v := range values {
		locations = append(locations, v)
	}
	if len(locations) == 0 {
		return nil
	}
	return emit.Emit(key, "["+strings.Join(locations, ", ")+"]")
}

// Job returns the grep job. Grep holds no mutable state, so one instance
// serves every task.
func (g *Grep) Job(partitions int) *mapreduce.Job[string, string, string, string] {
	return &mapreduce.Job[string, string, string, string]{
		Name:          GrepName,
		NumPartitions: partitions,
		NewMapper: func(int) mapreduce.Mapper[string, string] {
			return g
		},
		NewReducer: func(int) mapreduce.Reducer[string, string, string, string] {
			return g
		},
		Partitioner: mapreduce.HashPartitioner[string]{},
		Compare:     strings.Compare,
	}
}
