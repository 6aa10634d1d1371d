package storage

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"BatchMR/internal/types"
)

func readDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSinkCommit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	sink := NewSink(NewLocalFSClient(), out, "run-1", false, nil)
	if err := sink.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	p0 := []types.KeyValue[string, types.Null]{{Key: "a"}, {Key: "b"}}
	p1 := []types.KeyValue[int, int]{{Key: 1, Value: 10}}
	if err := sink.WriteSegment(0, Lines(p0)); err != nil {
		t.Fatalf("WriteSegment failed: %v", err)
	}
	if err := sink.WriteSegment(1, Lines(p1)); err != nil {
		t.Fatalf("WriteSegment failed: %v", err)
	}
	if err := sink.Commit(2); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	want := []string{"_SUCCESS", "part-r-00000", "part-r-00001"}
	if got := readDir(t, out); !slices.Equal(got, want) {
		t.Fatalf("Output files = %v, want %v", got, want)
	}
	data, _ := os.ReadFile(filepath.Join(out, "part-r-00000"))
	if string(data) != "a\nb\n" {
		t.Fatalf("Segment 0 = %q", data)
	}
	data, _ = os.ReadFile(filepath.Join(out, "part-r-00001"))
	if string(data) != "1\t10\n" {
		t.Fatalf("Segment 1 = %q", data)
	}
}

func TestSinkKeepRefusesNonEmptyOutput(t *testing.T) {
	out := t.TempDir()
	writeFile(t, filepath.Join(out, "old"), "keep me")

	sink := NewSink(NewLocalFSClient(), out, "run-1", true, nil)
	err := sink.Prepare()
	if !errors.Is(err, types.ErrOutputConflict) {
		t.Fatalf("Expected ErrOutputConflict, got %v", err)
	}
	if err := sink.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "old")); err != nil {
		t.Fatalf("Existing output was touched: %v", err)
	}
}

func TestSinkClearsOldOutput(t *testing.T) {
	out := t.TempDir()
	writeFile(t, filepath.Join(out, "part-r-00007"), "stale\n")
	writeFile(t, filepath.Join(out, "sub", "nested"), "stale\n")

	sink := NewSink(NewLocalFSClient(), out, "run-2", false, nil)
	if err := sink.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := sink.WriteSegment(0, Lines([]types.KeyValue[string, string]{{Key: "k", Value: "v"}})); err != nil {
		t.Fatalf("WriteSegment failed: %v", err)
	}
	if err := sink.Commit(1); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if got := readDir(t, out); !slices.Equal(got, []string{"_SUCCESS", "part-r-00000"}) {
		t.Fatalf("Output files = %v", got)
	}
}

func TestSinkEmptyDirectoryIsNotAConflict(t *testing.T) {
	out := t.TempDir()
	sink := NewSink(NewLocalFSClient(), out, "run-3", true, nil)
	if err := sink.Prepare(); err != nil {
		t.Fatalf("Prepare on empty dir failed: %v", err)
	}
}

func TestSinkAbortKeepsReusedDirectory(t *testing.T) {
	out := t.TempDir()
	sink := NewSink(NewLocalFSClient(), out, "run-5", false, nil)
	if err := sink.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := sink.WriteSegment(0, Lines([]types.KeyValue[string, string]{{Key: "half", Value: "written"}})); err != nil {
		t.Fatalf("WriteSegment failed: %v", err)
	}
	if err := sink.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if got := readDir(t, out); len(got) != 0 {
		t.Fatalf("Aborted output left %v behind", got)
	}
}

func TestSinkAbortRemovesPartialOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	sink := NewSink(NewLocalFSClient(), out, "run-4", false, nil)
	if err := sink.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := sink.WriteSegment(0, Lines([]types.KeyValue[string, string]{{Key: "half", Value: "written"}})); err != nil {
		t.Fatalf("WriteSegment failed: %v", err)
	}
	if err := sink.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("Aborted output still exists: %v", err)
	}
	if err := sink.WriteSegment(0, Lines([]types.KeyValue[string, string]{})); err == nil {
		t.Fatalf("Writing after Abort should fail")
	}
}

func TestFormatRecord(t *testing.T) {
	if got := FormatRecord(types.Pair("a b", types.Null{})); got != "a b" {
		t.Fatalf("Null value: %q", got)
	}
	if got := FormatRecord(types.Pair("Tom", "Alice")); got != "Tom\tAlice" {
		t.Fatalf("String value: %q", got)
	}
	if got := FormatRecord(types.Pair(3, 42)); got != "3\t42" {
		t.Fatalf("Int value: %q", got)
	}
}
