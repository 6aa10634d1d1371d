package jobs

import (
	"fmt"
	"iter"
	"strings"

	"BatchMR/internal/mapreduce"
	"BatchMR/internal/types"
)

const (
	// JoinName is the name of the grandparent join job.
	JoinName = "join"

	parentTag = "PARENT:"
	childTag  = "CHILD:"
	headerTag = "child"
)

type joinMapper struct{}

// Map turns "child parent" into (child, PARENT:parent) and
// (parent, CHILD:child). Blank lines, the header and lines that are not two
// fields are skipped.
func (joinMapper) Map(rec types.Record, emit mapreduce.Emitter[string, string]) error {
	fields := strings.Fields(rec.Text)
	switch {
	case len(fields) == 0:
		return mapreduce.SkipRecord("blank line")
	case fields[0] == headerTag:
		return mapreduce.SkipRecord("header line")
	case len(fields) != 2:
		return mapreduce.SkipRecord(fmt.Sprintf("expected 2 fields, got %d", len(fields)))
	}

	child, parent := fields[0], fields[1]
	if err := emit.Emit(child, parentTag+parent); err != nil {
		return err
	}
	return emit.Emit(parent, childTag+child)
}

// joinReducer keeps its scratch lists across groups to avoid reallocating.
type joinReducer struct {
	parents  []string
	children []string
}

// Reduce pairs every child of key with every parent of key.
func (r *joinReducer) Reduce(key string, values iter.Seq[string], emit mapreduce.Emitter[string, string]) error {
	r.parents = r.parents[:0]
	r.children = r.children[:0]

	for v := range values {
		if p, ok := strings.CutPrefix(v, parentTag); ok {
			r.parents = append(r.parents, p)
		} else if c, ok := strings.CutPrefix(v, childTag); ok {
			r.children = append(r.children, c)
		}
	}

	for _, c := range r.children {
		for _, p := range r.parents {
			if err := emit.Emit(c, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Join returns the job that derives (grandchild, grandparent) pairs from a
// child-parent edge list.
func Join(partitions int) *mapreduce.Job[string, string, string, string] {
	return &mapreduce.Job[string, string, string, string]{
		Name:          JoinName,
		NumPartitions: partitions,
		NewMapper: func(int) mapreduce.Mapper[string, string] {
			return joinMapper{}
		},
		NewReducer: func(int) mapreduce.Reducer[string, string, string, string] {
			return &joinReducer{}
		},
		Partitioner: mapreduce.HashPartitioner[string]{},
		Compare:     strings.Compare,
	}
}
