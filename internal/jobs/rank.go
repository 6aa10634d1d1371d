package jobs

import (
	"cmp"
	"iter"
	"strconv"
	"strings"

	"BatchMR/internal/mapreduce"
	"BatchMR/internal/types"
)

const (
	// RankName is the name of the ranking job.
	RankName = "rank"
	// DefaultMaxKey is the largest key the range partitioner expects when
	// none is configured.
	DefaultMaxKey = 65223
)

type rankMapper struct{}

func (rankMapper) Map(rec types.Record, emit mapreduce.Emitter[int, int]) error {
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		return mapreduce.SkipRecord("blank line")
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return types.Malformed(rec, err)
	}
	return emit.Emit(n, 1)
}

// rankReducer numbers every occurrence of every key in ascending key order.
// The counter is local to the partition; Rebase turns it into a global rank.
type rankReducer struct {
	next int
}

func newRankReducer() *rankReducer {
	return &rankReducer{next: 1}
}

func (r *rankReducer) Reduce(key int, values iter.Seq[int], emit mapreduce.Emitter[int, int]) error {
	for range values {
		if err := emit.Emit(r.next, key); err != nil {
			return err
		}
		r.next++
	}
	return nil
}

func (r *rankReducer) PositionSensitive() bool { return true }

func (r *rankReducer) Rebase(kv types.KeyValue[int, int], offset int) types.KeyValue[int, int] {
	kv.Key += offset
	return kv
}

// Rank returns the job that sorts integers and assigns each occurrence its
// 1-based rank. Keys are range-partitioned over [0, maxKey] so partition
// segments concatenate into one sorted output; keys outside that range are
// routed to partition 0 and reported, or fail the run when strict is set.
func Rank(partitions, maxKey int, strict bool) (*mapreduce.Job[int, int, int, int], error) {
	part, err := mapreduce.NewRangePartitioner(maxKey)
	if err != nil {
		return nil, err
	}
	return &mapreduce.Job[int, int, int, int]{
		Name:          RankName,
		NumPartitions: partitions,
		NewMapper: func(int) mapreduce.Mapper[int, int] {
			return rankMapper{}
		},
		NewReducer: func(int) mapreduce.Reducer[int, int, int, int] {
			return newRankReducer()
		},
		Partitioner:   part,
		Compare:       cmp.Compare[int],
		StrictRouting: strict,
	}, nil
}
