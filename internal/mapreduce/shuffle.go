package mapreduce

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"BatchMR/internal/logger"
	"BatchMR/internal/spill"
	"BatchMR/internal/types"
)

// run is one sorted slice of a map task's output for one partition, either
// held in memory or stored in the spill store.
type run[K, V any] struct {
	task    int
	seq     int
	pairs   []types.KeyValue[K, V]
	seg     spill.Segment
	spilled bool
}

func (r *run[K, V]) cursor(store *spill.Store) cursor[K, V] {
	if r.spilled {
		return &spillCursor[K, V]{reader: store.Reader(r.seg)}
	}
	return &sliceCursor[K, V]{pairs: r.pairs}
}

// shuffle holds the runs of every partition once map tasks hand them over.
type shuffle[K, V any] struct {
	mu   sync.Mutex
	runs [][]*run[K, V]
}

func newShuffle[K, V any](partitions int) *shuffle[K, V] {
	return &shuffle[K, V]{runs: make([][]*run[K, V], partitions)}
}

func (s *shuffle[K, V]) add(p int, runs ...*run[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[p] = append(s.runs[p], runs...)
}

// partition returns the runs of p in emission order.
func (s *shuffle[K, V]) partition(p int) []*run[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := slices.Clone(s.runs[p])
	slices.SortFunc(runs, func(a, b *run[K, V]) int {
		if a.task != b.task {
			return a.task - b.task
		}
		return a.seq - b.seq
	})
	return runs
}

// collector receives the pairs of one map task. It routes each pair to its
// partition buffer and turns full buffers into sorted runs.
type collector[K, V any] struct {
	task     int
	part     Partitioner[K]
	compare  func(a, b K) int
	n        int
	strict   bool
	nilable  bool
	combiner Reducer[K, V, K, V]

	store     *spill.Store
	threshold int

	buffers [][]types.KeyValue[K, V]
	runs    [][]*run[K, V]
	seq     int

	emitted   int64
	combined  int64
	spilled   int64
	misrouted int64

	logger *logger.Logger
}

func (c *collector[K, V]) Emit(key K, value V) error {
	if c.nilable && isNil(key) {
		return types.ErrNilKey
	}
	p, err := c.route(key)
	if err != nil {
		return err
	}
	c.emitted++
	c.buffers[p] = append(c.buffers[p], types.Pair(key, value))
	if c.store != nil && c.threshold > 0 && len(c.buffers[p]) >= c.threshold {
		return c.flush(p, true)
	}
	return nil
}

func (c *collector[K, V]) route(key K) (int, error) {
	p := c.part.Partition(key, c.n)
	if p >= 0 && p < c.n {
		return p, nil
	}
	if c.strict {
		return 0, fmt.Errorf("key %v routed to partition %d of %d: %w", key, p, c.n, types.ErrPartitionRouting)
	}
	if c.misrouted == 0 {
		c.logger.Warn("Key outside partition range, using fallback partition 0: task=%d key=%v index=%d partitions=%d",
			c.task, key, p, c.n)
	}
	c.misrouted++
	return 0, nil
}

// flush sorts and combines the buffer of partition p and turns it into a run.
func (c *collector[K, V]) flush(p int, toStore bool) error {
	buf := c.buffers[p]
	if len(buf) == 0 {
		return nil
	}
	c.buffers[p] = nil

	slices.SortStableFunc(buf, func(a, b types.KeyValue[K, V]) int {
		return c.compare(a.Key, b.Key)
	})

	if c.combiner != nil {
		combined, err := c.combine(buf)
		if err != nil {
			return err
		}
		buf = combined
	}
	c.combined += int64(len(buf))

	r := &run[K, V]{task: c.task, seq: c.seq}
	c.seq++

	if !toStore {
		r.pairs = buf
		c.runs[p] = append(c.runs[p], r)
		return nil
	}

	entries := make([][]byte, len(buf))
	for i, kv := range buf {
		data, err := encodePair(kv)
		if err != nil {
			return err
		}
		entries[i] = data
	}
	seg, err := c.store.Append(entries)
	if err != nil {
		return err
	}
	r.seg = seg
	r.spilled = true
	c.spilled += int64(len(buf))
	c.runs[p] = append(c.runs[p], r)
	c.logger.Debug("Buffer spilled: task=%d partition=%d pairs=%d bytes=%d", c.task, p, len(buf), seg.Bytes)
	return nil
}

// combine applies the combiner to each group of a sorted buffer. The
// combiner must keep the group's key.
func (c *collector[K, V]) combine(sorted []types.KeyValue[K, V]) ([]types.KeyValue[K, V], error) {
	out := make([]types.KeyValue[K, V], 0, len(sorted))
	g := newGrouper[K, V](&sliceCursor[K, V]{pairs: sorted}, c.compare)
	err := g.each(func(key K, values iter.Seq[V]) error {
		emit := EmitFunc[K, V](func(k K, v V) error {
			if c.compare(k, key) != 0 {
				return fmt.Errorf("combiner changed key %v to %v", key, k)
			}
			out = append(out, types.Pair(k, v))
			return nil
		})
		return c.combiner.Reduce(key, values, emit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to combine map task %d output: %w", c.task, err)
	}
	return out, nil
}

// finish flushes every remaining buffer as an in-memory run.
func (c *collector[K, V]) finish() error {
	for p := range c.buffers {
		if err := c.flush(p, false); err != nil {
			return err
		}
	}
	return nil
}
