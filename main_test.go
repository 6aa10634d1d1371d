package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunExitCodes(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "numbers.txt")
	if err := os.WriteFile(input, []byte("3\n1\n2\n"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}
	bad := filepath.Join(root, "bad.txt")
	if err := os.WriteFile(bad, []byte("3\nx\n"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"help", []string{"-h"}, exitUsage},
		{"unknown flag", []string{"-bogus"}, exitUsage},
		{"missing job", []string{"-input", input, "-output", filepath.Join(root, "o1")}, exitUsage},
		{"success", []string{"-job", "rank", "-input", input, "-output", filepath.Join(root, "o2")}, exitOK},
		{"conflict", []string{"-job", "rank", "-input", input, "-output", filepath.Join(root, "o2"), "-keep-output"}, exitFailure},
		{"rerun", []string{"-job", "rank", "-input", input, "-output", filepath.Join(root, "o2")}, exitOK},
		{"malformed", []string{"-job", "rank", "-input", bad, "-output", filepath.Join(root, "o3")}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stderr); code != tt.code {
				t.Fatalf("run(%v) = %d, want %d\n%s", tt.args, code, tt.code, stderr.String())
			}
		})
	}

	data, err := os.ReadFile(filepath.Join(root, "o2", "part-r-00000"))
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if got, want := string(data), "1\t1\n2\t2\n3\t3\n"; got != want {
		t.Fatalf("Output = %q, want %q", got, want)
	}
}

func TestRunWithConfigFile(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "words.txt")
	if err := os.WriteFile(input, []byte("b\na\nb\n"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}
	cfgFile := filepath.Join(root, "job.json")
	cfg := `{"job": "dedup", "input": "` + input + `", "output": "` + filepath.Join(root, "out") + `"}`
	if err := os.WriteFile(cfgFile, []byte(cfg), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-config", cfgFile, "-log-level", "DEBUG"}, &stderr); code != exitOK {
		t.Fatalf("run failed with %d\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "[DEBUG]") {
		t.Fatalf("Expected debug output from -log-level override")
	}
	data, err := os.ReadFile(filepath.Join(root, "out", "part-r-00000"))
	if err != nil || string(data) != "a\nb\n" {
		t.Fatalf("Output = %q, %v", data, err)
	}
}

func TestRunKeepsHistoryInStateFile(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "edges.txt")
	if err := os.WriteFile(input, []byte("Tom Ben\nBen Alice\n"), 0o644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}
	stateFile := filepath.Join(root, "runs.json")
	args := []string{"-job", "join", "-input", input, "-output", filepath.Join(root, "out"), "-state-file", stateFile}

	for i := 0; i < 2; i++ {
		var stderr bytes.Buffer
		if code := run(context.Background(), args, &stderr); code != exitOK {
			t.Fatalf("run %d failed with %d\n%s", i, code, stderr.String())
		}
	}

	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatalf("Failed to read state file: %v", err)
	}
	var saved struct {
		Runs map[string]struct {
			Status string `json:"status"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("State file is not JSON: %v", err)
	}
	if len(saved.Runs) != 2 {
		t.Fatalf("State file holds %d runs, want 2", len(saved.Runs))
	}
	for id, r := range saved.Runs {
		if r.Status != "committed" {
			t.Fatalf("Run %s status = %s", id, r.Status)
		}
	}

	out, err := os.ReadFile(filepath.Join(root, "out", "part-r-00000"))
	if err != nil || string(out) != "Tom\tAlice\n" {
		t.Fatalf("Output = %q, %v", out, err)
	}
}
