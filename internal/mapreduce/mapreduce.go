package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"BatchMR/internal/logger"
	"BatchMR/internal/spill"
	"BatchMR/internal/types"
)

// Input is a set of record splits. Each split becomes one map task.
type Input interface {
	NumSplits() int
	// ScanSplit calls fn for every record of the split, in order.
	ScanSplit(ctx context.Context, split int, fn func(types.Record) error) error
}

// Engine is the local map/shuffle/reduce execution engine.
type Engine struct {
	workers        int
	spillThreshold int
	store          *spill.Store
	observer       TaskObserver
	logger         *logger.Logger
}

// TaskObserver is told when map and reduce tasks start and finish. Calls
// come from the worker goroutines concurrently.
type TaskObserver interface {
	TaskStarted(kind types.TaskKind, index int)
	// TaskFinished reports the records read by a map task or the groups
	// reduced by a reduce task, and the task's error if it failed.
	TaskFinished(kind types.TaskKind, index int, processed int64, err error)
}

type nopObserver struct{}

func (nopObserver) TaskStarted(types.TaskKind, int) {}
func (nopObserver) TaskFinished(types.TaskKind, int, int64, error) {}

// NewEngine creates an engine running at most workers tasks at a time.
// A non-positive count uses one worker per CPU.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		workers:  workers,
		observer: nopObserver{},
		logger:   logger.Discard(),
	}
}

// SetObserver registers o to follow task progress.
func (e *Engine) SetObserver(o TaskObserver) {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

// SetSpill makes map tasks move a partition buffer into store once it holds
// threshold pairs. A nil store keeps everything in memory.
func (e *Engine) SetSpill(store *spill.Store, threshold int) {
	e.store = store
	e.spillThreshold = threshold
}

// SetLogger configures the engine's logger.
func (e *Engine) SetLogger(lg *logger.Logger) {
	if lg == nil {
		lg = logger.Discard()
	}
	e.logger = lg.With("engine")
}

// Workers returns the size of the worker pool.
func (e *Engine) Workers() int {
	return e.workers
}

// Stats are the counters of one run.
type Stats struct {
	MapTasks   int
	Partitions int
	Records    int64 // records read
	Skipped    int64 // records skipped by mappers
	Emitted    int64 // pairs emitted by mappers
	Shuffled   int64 // pairs handed to the shuffle after combining
	Spilled    int64 // pairs written to the spill store
	Misrouted  int64 // keys sent to the fallback partition
	Groups     int64 // reduce invocations
	Output     int64 // pairs emitted by reducers
}

func (s Stats) String() string {
	return logger.Fields(map[string]interface{}{
		"map_tasks":  s.MapTasks,
		"partitions": s.Partitions,
		"records":    s.Records,
		"skipped":    s.Skipped,
		"emitted":    s.Emitted,
		"shuffled":   s.Shuffled,
		"spilled":    s.Spilled,
		"misrouted":  s.Misrouted,
		"groups":     s.Groups,
		"output":     s.Output,
	})
}

type counters struct {
	records, skipped, emitted, shuffled, spilled, misrouted, groups, output atomic.Int64
}

func (c *counters) snapshot(mapTasks, partitions int) Stats {
	return Stats{
		MapTasks:   mapTasks,
		Partitions: partitions,
		Records:    c.records.Load(),
		Skipped:    c.skipped.Load(),
		Emitted:    c.emitted.Load(),
		Shuffled:   c.shuffled.Load(),
		Spilled:    c.spilled.Load(),
		Misrouted:  c.misrouted.Load(),
		Groups:     c.groups.Load(),
		Output:     c.output.Load(),
	}
}

// Result holds the reduce output of every partition, in partition order.
type Result[OK, OV any] struct {
	Partitions [][]types.KeyValue[OK, OV]
	Stats      Stats
}

// Execute runs job over in. Any task failure cancels the remaining tasks and
// fails the whole run; no partial result is returned.
func Execute[K, V, OK, OV any](ctx context.Context, e *Engine, job *Job[K, V, OK, OV], in Input) (*Result[OK, OV], error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	j := *job
	if j.Partitioner == nil {
		j.Partitioner = HashPartitioner[K]{}
	}

	lg := e.logger.With(j.Name)
	n := j.NumPartitions
	splits := in.NumSplits()
	sh := newShuffle[K, V](n)
	var st counters

	lg.Info("Map phase started: splits=%d partitions=%d workers=%d", splits, n, e.workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for task := 0; task < splits; task++ {
		g.Go(func() error {
			e.observer.TaskStarted(types.MapTask, task)
			records, err := runMapTask(gctx, e, &j, in, task, sh, &st, lg)
			e.observer.TaskFinished(types.MapTask, task, records, err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		lg.Error("Map phase failed: %v", err)
		return nil, err
	}

	lg.Info("Reduce phase started: partitions=%d pairs=%d", n, st.shuffled.Load())
	out := make([][]types.KeyValue[OK, OV], n)
	reducers := make([]Reducer[K, V, OK, OV], n)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for p := 0; p < n; p++ {
		g.Go(func() error {
			e.observer.TaskStarted(types.ReduceTask, p)
			kvs, r, groups, err := runReduceTask(gctx, e, &j, p, sh, &st, lg)
			e.observer.TaskFinished(types.ReduceTask, p, groups, err)
			if err != nil {
				return err
			}
			out[p] = kvs
			reducers[p] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		lg.Error("Reduce phase failed: %v", err)
		return nil, err
	}

	rebase(out, reducers)

	stats := st.snapshot(splits, n)
	if stats.Misrouted > 0 {
		lg.Warn("Keys routed to fallback partition: count=%d", stats.Misrouted)
	}
	lg.Info("Job finished: %s", stats)
	return &Result[OK, OV]{Partitions: out, Stats: stats}, nil
}

func runMapTask[K, V, OK, OV any](
	ctx context.Context,
	e *Engine,
	j *Job[K, V, OK, OV],
	in Input,
	task int,
	sh *shuffle[K, V],
	st *counters,
	lg *logger.Logger,
) (int64, error) {
	n := j.NumPartitions
	c := &collector[K, V]{
		task:      task,
		part:      j.Partitioner,
		compare:   j.Compare,
		n:         n,
		strict:    j.StrictRouting,
		nilable:   nilable[K](),
		store:     e.store,
		threshold: e.spillThreshold,
		buffers:   make([][]types.KeyValue[K, V], n),
		runs:      make([][]*run[K, V], n),
		logger:    lg,
	}
	if j.NewCombiner != nil {
		c.combiner = j.NewCombiner(task)
	}
	mapper := j.NewMapper(task)

	var records, skipped int64
	err := in.ScanSplit(ctx, task, func(rec types.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		records++
		err := mapper.Map(rec, c)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSkipRecord) {
			skipped++
			lg.Debug("Record skipped: split=%d line=%d reason=%v", rec.Split, rec.Line, err)
			return nil
		}
		var recErr *types.RecordError
		if errors.As(err, &recErr) {
			return err
		}
		return &types.RecordError{Split: rec.Split, Line: rec.Line, Text: rec.Text, Err: err}
	})
	if err == nil {
		err = c.finish()
	}
	if err != nil {
		return records, fmt.Errorf("map task %d failed: %w", task, err)
	}

	for p, runs := range c.runs {
		if len(runs) > 0 {
			sh.add(p, runs...)
		}
	}

	st.records.Add(records)
	st.skipped.Add(skipped)
	st.emitted.Add(c.emitted)
	st.shuffled.Add(c.combined)
	st.spilled.Add(c.spilled)
	st.misrouted.Add(c.misrouted)
	lg.Debug("Map task finished: task=%d records=%d skipped=%d emitted=%d shuffled=%d",
		task, records, skipped, c.emitted, c.combined)
	return records, nil
}

func runReduceTask[K, V, OK, OV any](
	ctx context.Context,
	e *Engine,
	j *Job[K, V, OK, OV],
	p int,
	sh *shuffle[K, V],
	st *counters,
	lg *logger.Logger,
) ([]types.KeyValue[OK, OV], Reducer[K, V, OK, OV], int64, error) {
	runs := sh.partition(p)
	sources := make([]cursor[K, V], len(runs))
	for i, r := range runs {
		sources[i] = r.cursor(e.store)
	}

	reducer := j.NewReducer(p)
	checkNil := nilable[OK]()
	var out []types.KeyValue[OK, OV]
	emit := EmitFunc[OK, OV](func(k OK, v OV) error {
		if checkNil && isNil(k) {
			return types.ErrNilKey
		}
		out = append(out, types.Pair(k, v))
		return nil
	})

	var groups int64
	g := newGrouper[K, V](newMerger(j.Compare, sources), j.Compare)
	err := g.each(func(key K, values iter.Seq[V]) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		groups++
		return reducer.Reduce(key, values, emit)
	})
	if err != nil {
		return nil, nil, groups, fmt.Errorf("reduce partition %d failed: %w", p, err)
	}

	for _, r := range runs {
		if r.spilled {
			if err := e.store.Release(r.seg); err != nil {
				return nil, nil, groups, err
			}
		}
	}

	st.groups.Add(groups)
	st.output.Add(int64(len(out)))
	lg.Debug("Partition reduced: partition=%d runs=%d groups=%d output=%d", p, len(runs), groups, len(out))
	return out, reducer, groups, nil
}

// rebase shifts partition-local output by the output count of all
// lower-indexed partitions, for reducers that ask for it.
func rebase[K, V, OK, OV any](out [][]types.KeyValue[OK, OV], reducers []Reducer[K, V, OK, OV]) {
	offset := 0
	for p := range out {
		if rb, ok := reducers[p].(Rebaser[OK, OV]); ok {
			for i := range out[p] {
				out[p][i] = rb.Rebase(out[p][i], offset)
			}
		}
		offset += len(out[p])
	}
}

func nilable[K any]() bool {
	switch reflect.TypeFor[K]().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
