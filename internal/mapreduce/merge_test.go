package mapreduce

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"testing"

	"BatchMR/internal/types"
)

func pairs(items ...string) []types.KeyValue[string, string] {
	var out []types.KeyValue[string, string]
	for _, s := range items {
		k, v, _ := strings.Cut(s, "=")
		out = append(out, types.Pair(k, v))
	}
	return out
}

func TestMergeIsStableAcrossRuns(t *testing.T) {
	m := newMerger(strings.Compare, []cursor[string, string]{
		&sliceCursor[string, string]{pairs: pairs("a=1", "c=1")},
		&sliceCursor[string, string]{pairs: pairs("a=2", "b=2", "c=2")},
		&sliceCursor[string, string]{},
		&sliceCursor[string, string]{pairs: pairs("a=3", "c=3")},
	})

	var got []string
	for {
		kv, ok, err := m.next()
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, kv.Key+"="+kv.Value)
	}
	want := []string{"a=1", "a=2", "a=3", "b=2", "c=1", "c=2", "c=3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge order = %v, want %v", got, want)
	}
}

func TestGrouperGroups(t *testing.T) {
	g := newGrouper[string, string](&sliceCursor[string, string]{pairs: pairs("a=1", "a=2", "b=1", "c=1", "c=2", "c=3")}, strings.Compare)

	var got []string
	err := g.each(func(key string, values iter.Seq[string]) error {
		var vs []string
		for v := range values {
			vs = append(vs, v)
		}
		got = append(got, fmt.Sprintf("%s:%s", key, strings.Join(vs, "")))
		return nil
	})
	if err != nil {
		t.Fatalf("each failed: %v", err)
	}
	if want := []string{"a:12", "b:1", "c:123"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Groups = %v, want %v", got, want)
	}
}

func TestGrouperEmptyInput(t *testing.T) {
	g := newGrouper[string, string](&sliceCursor[string, string]{}, strings.Compare)
	calls := 0
	if err := g.each(func(string, iter.Seq[string]) error { calls++; return nil }); err != nil {
		t.Fatalf("each failed: %v", err)
	}
	if calls != 0 {
		t.Fatalf("Empty input produced %d groups", calls)
	}
}

type failingCursor struct {
	left int
}

func (c *failingCursor) next() (types.KeyValue[string, string], bool, error) {
	if c.left == 0 {
		return types.KeyValue[string, string]{}, false, errors.New("read failed")
	}
	c.left--
	return types.Pair(fmt.Sprintf("k%d", c.left), ""), true, nil
}

func TestGrouperPropagatesCursorErrors(t *testing.T) {
	g := newGrouper[string, string](&failingCursor{left: 2}, func(a, b string) int { return -strings.Compare(a, b) })
	err := g.each(func(key string, values iter.Seq[string]) error {
		for range values {
		}
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "read failed") {
		t.Fatalf("Expected cursor error, got %v", err)
	}
}
