// Package jobs contains the built-in map/reduce jobs.
package jobs

import (
	"iter"
	"strings"

	"BatchMR/internal/mapreduce"
	"BatchMR/internal/types"
)

// DedupName is the name of the deduplication job.
const DedupName = "dedup"

type dedupMapper struct{}

// Map makes the whole line the key, so duplicates meet in one group.
func (dedupMapper) Map(rec types.Record, emit mapreduce.Emitter[string, types.Null]) error {
	return emit.Emit(rec.Text, types.Null{})
}

type dedupReducer struct{}

// Reduce emits each distinct line once, however many times it occurred.
func (dedupReducer) Reduce(key string, _ iter.Seq[types.Null], emit mapreduce.Emitter[string, types.Null]) error {
	return emit.Emit(key, types.Null{})
}

// Dedup returns the job that merges its inputs and drops duplicate lines.
// The reducer doubles as the combiner.
func Dedup(partitions int) *mapreduce.Job[string, types.Null, string, types.Null] {
	return &mapreduce.Job[string, types.Null, string, types.Null]{
		Name:          DedupName,
		NumPartitions: partitions,
		NewMapper: func(int) mapreduce.Mapper[string, types.Null] {
			return dedupMapper{}
		},
		NewCombiner: func(int) mapreduce.Reducer[string, types.Null, string, types.Null] {
			return dedupReducer{}
		},
		NewReducer: func(int) mapreduce.Reducer[string, types.Null, string, types.Null] {
			return dedupReducer{}
		},
		Partitioner: mapreduce.HashPartitioner[string]{},
		Compare:     strings.Compare,
	}
}
