package jobs

import (
	"reflect"
	"testing"

	"BatchMR/internal/mapreduce"
)

func TestNewGrep(t *testing.T) {
	if _, err := NewGrep(""); err == nil {
		t.Fatalf("Expected error for empty pattern")
	}
	if _, err := NewGrep("[unclosed"); err == nil {
		t.Fatalf("Expected error for invalid pattern")
	}
}

func TestGrepJob(t *testing.T) {
	g, err := NewGrep("err(or)?")
	if err != nil {
		t.Fatalf("NewGrep failed: %v", err)
	}
	in := mapreduce.Lines{
		{"ok", "error: disk", "ok"},
		{"error: disk", "warn", "err"},
	}
	got, stats := run(t, g.Job(1), in)
	want := []string{
		"err\t[1:3]",
		"error: disk\t[0:2, 1:1]",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Grep = %v, want %v", got, want)
	}
	if stats.Records != 6 || stats.Emitted != 3 {
		t.Fatalf("Unexpected stats: %s", stats)
	}
}
