// Package coordinator drives job runs: it resolves the input and output
// locations, runs the engine, writes the output segments and commits or
// aborts the output. It keeps the state of every run it started.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	"golang.org/x/sync/errgroup"

	"BatchMR/internal/config"
	"BatchMR/internal/jobs"
	"BatchMR/internal/logger"
	"BatchMR/internal/mapreduce"
	"BatchMR/internal/spill"
	"BatchMR/internal/storage"
	"BatchMR/internal/types"
)

// Coordinator runs jobs with the settings of one config.
type Coordinator struct {
	cfg     *config.Config
	journal *journal
	index   atomic.Uint64
	logger  *logger.Logger
}

// New creates a coordinator for cfg.
func New(cfg *config.Config, lg *logger.Logger) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if lg == nil {
		lg = logger.Discard()
	}

	lg = lg.With("coordinator")
	return &Coordinator{
		cfg:     cfg,
		journal: newJournal(lg),
		logger:  lg,
	}, nil
}

// Run builds the configured job and runs it.
func (c *Coordinator) Run(ctx context.Context) (*types.RunState, error) {
	switch c.cfg.Job {
	case jobs.DedupName:
		return Submit(ctx, c, jobs.Dedup(c.cfg.Reducers))
	case jobs.RankName:
		job, err := jobs.Rank(c.cfg.Reducers, c.cfg.MaxKey, c.cfg.StrictRange)
		if err != nil {
			return nil, fmt.Errorf("failed to build rank job: %w", err)
		}
		return Submit(ctx, c, job)
	case jobs.JoinName:
		return Submit(ctx, c, jobs.Join(c.cfg.Reducers))
	case jobs.GrepName:
		g, err := jobs.NewGrep(c.cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to build grep job: %w", err)
		}
		return Submit(ctx, c, g.Job(c.cfg.Reducers))
	default:
		return nil, fmt.Errorf("unknown job %q", c.cfg.Job)
	}
}

// Submit runs job over the configured input and commits its output. The
// returned state is a snapshot taken when the run ended. On failure nothing
// is left at the output location.
func Submit[K, V, OK, OV any](ctx context.Context, c *Coordinator, job *mapreduce.Job[K, V, OK, OV]) (*types.RunState, error) {
	runID := c.startRun(job.Name)
	lg := c.logger.With(runID)
	lg.Info("Run started: job=%s input=%s output=%s", job.Name, c.cfg.Input, c.cfg.Output)

	stats, err := execute(ctx, c, job, runID, lg)
	c.finishRun(runID, err)
	if err != nil {
		lg.Error("Run aborted: %v", err)
	} else {
		lg.Info("Run committed: %s", stats)
	}

	snap, _ := c.GetRunState(runID)
	return snap, err
}

func execute[K, V, OK, OV any](
	ctx context.Context,
	c *Coordinator,
	job *mapreduce.Job[K, V, OK, OV],
	runID string,
	lg *logger.Logger,
) (mapreduce.Stats, error) {
	var stats mapreduce.Stats
	opts := storage.HDFSOptions{Namenode: c.cfg.HDFS.Namenode, User: c.cfg.HDFS.User}

	inClient, inPath, err := storage.Resolve(c.cfg.Input, opts)
	if err != nil {
		return stats, fmt.Errorf("failed to open input: %w: %w", types.ErrIO, err)
	}
	defer inClient.Close()

	outClient, outPath, err := storage.Resolve(c.cfg.Output, opts)
	if err != nil {
		return stats, fmt.Errorf("failed to open output: %w: %w", types.ErrIO, err)
	}
	defer outClient.Close()

	if err := checkOverlap(c.cfg.Input, inPath, c.cfg.Output, outPath); err != nil {
		return stats, err
	}

	src, err := storage.NewSource(inClient, inPath, lg)
	if err != nil {
		return stats, err
	}
	c.addTasks(runID, src.NumSplits(), job.NumPartitions)

	sink := storage.NewSink(outClient, outPath, runID, c.cfg.KeepOutput, lg)
	if err := sink.Prepare(); err != nil {
		return stats, err
	}
	abort := func(cause error) error {
		if err := sink.Abort(); err != nil {
			lg.Error("Failed to abort output: %v", err)
			return errors.Join(cause, err)
		}
		return cause
	}

	engine := mapreduce.NewEngine(c.cfg.Workers)
	engine.SetLogger(lg)
	engine.SetObserver(&tracker{c: c, runID: runID})
	if c.cfg.Spill.Threshold > 0 {
		store, err := spill.Open(spill.Options{Dir: c.cfg.Spill.Dir, MaxBytes: c.cfg.Spill.MaxBytes}, lg)
		if err != nil {
			return stats, abort(err)
		}
		defer store.Close()
		engine.SetSpill(store, c.cfg.Spill.Threshold)
	}

	res, err := mapreduce.Execute(ctx, engine, job, src)
	if err != nil {
		return stats, abort(err)
	}
	stats = res.Stats

	if err := writeSegments(ctx, sink, res, engine.Workers()); err != nil {
		return stats, abort(err)
	}
	if err := sink.Commit(len(res.Partitions)); err != nil {
		return stats, abort(err)
	}
	return stats, nil
}

func writeSegments[OK, OV any](ctx context.Context, sink *storage.Sink, res *mapreduce.Result[OK, OV], workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for p, kvs := range res.Partitions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return sink.WriteSegment(p, storage.Lines(kvs))
		})
	}
	return g.Wait()
}

// checkOverlap rejects an output location that is, or contains, the input:
// clearing it would destroy the input.
func checkOverlap(input, inPath, output, outPath string) error {
	inHDFS := strings.HasPrefix(input, "hdfs://")
	if inHDFS != strings.HasPrefix(output, "hdfs://") {
		return nil
	}

	var in, out string
	if inHDFS {
		in, out = path.Clean(inPath), path.Clean(outPath)
	} else {
		var err error
		if in, err = filepath.Abs(inPath); err != nil {
			return fmt.Errorf("failed to resolve input path: %w", err)
		}
		if out, err = filepath.Abs(outPath); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	if in == out || strings.HasPrefix(in, strings.TrimSuffix(out, "/")+"/") {
		return fmt.Errorf("output location %s contains input %s: %w", output, input, types.ErrOutputConflict)
	}
	return nil
}

func newID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

func taskKey(kind types.TaskKind, index int) string {
	return fmt.Sprintf("%s-%05d", kind, index)
}

// record applies ev to the journal as the next log entry.
func (c *Coordinator) record(ev event) {
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("Failed to marshal event: %v", err)
		return
	}
	entry := &raft.Log{
		Index:      c.index.Add(1),
		Type:       raft.LogCommand,
		Data:       data,
		AppendedAt: ev.Timestamp,
	}
	if res := c.journal.Apply(entry); res != nil {
		if err, ok := res.(error); ok {
			c.logger.Error("Failed to apply event: type=%s operation=%s run_id=%s err=%v", ev.Type, ev.Operation, ev.RunID, err)
		}
	}
}

func (c *Coordinator) startRun(job string) string {
	id := newID("run")
	c.record(event{
		Type:      eventRun,
		Operation: opStart,
		RunID:     id,
		Run: &types.RunState{
			ID:     id,
			Job:    job,
			Input:  c.cfg.Input,
			Output: c.cfg.Output,
		},
	})
	return id
}

func (c *Coordinator) addTasks(runID string, splits, partitions int) {
	add := func(kind types.TaskKind, n int) {
		for i := 0; i < n; i++ {
			c.record(event{
				Type:      eventTask,
				Operation: opAdd,
				RunID:     runID,
				Key:       taskKey(kind, i),
				Task:      &types.Task{ID: newID("task"), Kind: kind, Index: i},
			})
		}
	}
	add(types.MapTask, splits)
	add(types.ReduceTask, partitions)
}

func (c *Coordinator) finishRun(runID string, err error) {
	ev := event{Type: eventRun, Operation: opFinish, RunID: runID}
	if err != nil {
		ev.Error = err.Error()
	}
	c.record(ev)
}

// GetRunState returns a copy of the state of run id.
func (c *Coordinator) GetRunState(id string) (*types.RunState, error) {
	state, exists := c.journal.run(id)
	if !exists {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return state, nil
}

// Runs returns the ids of all known runs, oldest first.
func (c *Coordinator) Runs() []string {
	return c.journal.runIDs()
}

// SaveState writes the history of all known runs to w as JSON.
func (c *Coordinator) SaveState(w io.Writer) error {
	snap, err := c.journal.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot run state: %w", err)
	}
	defer snap.Release()
	if err := snap.Persist(&writerSink{Writer: w}); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

// LoadState replaces the run history with the one saved in r.
func (c *Coordinator) LoadState(r io.Reader) error {
	if err := c.journal.Restore(io.NopCloser(r)); err != nil {
		return fmt.Errorf("failed to load run state: %w", err)
	}
	return nil
}

var _ mapreduce.TaskObserver = (*tracker)(nil)

// tracker records engine task events in the journal.
type tracker struct {
	c     *Coordinator
	runID string
}

func (t *tracker) TaskStarted(kind types.TaskKind, index int) {
	t.c.record(event{
		Type:      eventTask,
		Operation: opStart,
		RunID:     t.runID,
		Key:       taskKey(kind, index),
	})
}

func (t *tracker) TaskFinished(kind types.TaskKind, index int, processed int64, err error) {
	ev := event{
		Type:      eventTask,
		Operation: opFinish,
		RunID:     t.runID,
		Key:       taskKey(kind, index),
		Processed: processed,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	t.c.record(ev)
}
