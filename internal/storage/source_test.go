package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"BatchMR/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func scanAll(t *testing.T, s *Source) []types.Record {
	t.Helper()
	var recs []types.Record
	for i := 0; i < s.NumSplits(); i++ {
		err := s.ScanSplit(context.Background(), i, func(r types.Record) error {
			recs = append(recs, r)
			return nil
		})
		if err != nil {
			t.Fatalf("ScanSplit(%d) failed: %v", i, err)
		}
	}
	return recs
}

func TestSourceDirectorySplitsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "b1\nb2\n")
	writeFile(t, filepath.Join(dir, "a.txt"), "a1\r\na2")
	writeFile(t, filepath.Join(dir, "_SUCCESS"), "")
	writeFile(t, filepath.Join(dir, ".a.txt.crc"), "junk\n")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "c1\n")

	s, err := NewSource(NewLocalFSClient(), dir, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	wantSplits := []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}
	if !reflect.DeepEqual(s.Splits(), wantSplits) {
		t.Fatalf("Splits = %v, want %v", s.Splits(), wantSplits)
	}

	want := []types.Record{
		{Split: 0, Line: 1, Text: "a1"},
		{Split: 0, Line: 2, Text: "a2"},
		{Split: 1, Line: 1, Text: "b1"},
		{Split: 1, Line: 2, Text: "b2"},
	}
	if got := scanAll(t, s); !reflect.DeepEqual(got, want) {
		t.Fatalf("Records = %+v, want %+v", got, want)
	}
}

func TestSourceSingleFileAndBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	writeFile(t, path, "x\n\ny\n")

	s, err := NewSource(NewLocalFSClient(), path, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	got := scanAll(t, s)
	if len(got) != 3 || got[1].Text != "" || got[2].Line != 3 {
		t.Fatalf("Unexpected records: %+v", got)
	}
}

func TestSourceMissingInput(t *testing.T) {
	_, err := NewSource(NewLocalFSClient(), filepath.Join(t.TempDir(), "missing"), nil)
	if !errors.Is(err, types.ErrIO) {
		t.Fatalf("Expected ErrIO, got %v", err)
	}
}

func TestSourceStopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	writeFile(t, path, "1\n2\n3\n")
	s, err := NewSource(NewLocalFSClient(), path, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	stop := errors.New("stop")
	calls := 0
	err = s.ScanSplit(context.Background(), 0, func(types.Record) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || calls != 2 {
		t.Fatalf("Expected stop after 2 calls, got %v after %d", err, calls)
	}
	if err := s.ScanSplit(context.Background(), 5, func(types.Record) error { return nil }); err == nil {
		t.Fatalf("Out of range split should fail")
	}
}

func TestResolve(t *testing.T) {
	client, p, err := Resolve("some/dir/../out", HDFSOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := client.(*localFSClient); !ok || p != filepath.Clean("some/out") {
		t.Fatalf("Unexpected local resolution: %T %s", client, p)
	}
	if _, _, err := Resolve("", HDFSOptions{}); err == nil {
		t.Fatalf("Empty location should fail")
	}
	if _, _, err := Resolve("hdfs:///data/in", HDFSOptions{}); err == nil {
		t.Fatalf("HDFS location without namenode should fail")
	}
}
