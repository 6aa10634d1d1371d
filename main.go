package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BatchMR/internal/config"
	"BatchMR/internal/coordinator"
	"BatchMR/internal/logger"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := config.Parse("batchmr", args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "batchmr: %v\n", err)
		}
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "batchmr: %v\n", err)
		return exitUsage
	}

	lg := logger.NewWithWriter(cfg.LogLevel, stderr)
	c, err := coordinator.New(cfg, lg)
	if err != nil {
		lg.Error("Failed to create coordinator: %v", err)
		return exitFailure
	}

	if cfg.StateFile != "" {
		if err := loadState(c, cfg.StateFile); err != nil {
			lg.Error("Failed to load run history: %v", err)
			return exitFailure
		}
		defer func() {
			if err := saveState(c, cfg.StateFile); err != nil {
				lg.Error("Failed to save run history: %v", err)
			}
		}()
	}

	start := time.Now()
	state, err := c.Run(ctx)
	if err != nil {
		lg.Error("Job failed: job=%s err=%v", cfg.Job, err)
		return exitFailure
	}

	lg.Info("Job succeeded: job=%s run_id=%s output=%s elapsed=%s",
		cfg.Job, state.ID, cfg.Output, time.Since(start).Round(time.Millisecond))
	return exitOK
}

func loadState(c *coordinator.Coordinator, file string) error {
	f, err := os.Open(file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return c.LoadState(f)
}

func saveState(c *coordinator.Coordinator, file string) error {
	tmp := file + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := c.SaveState(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, file)
}
