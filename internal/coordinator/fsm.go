package coordinator

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"BatchMR/internal/logger"
	"BatchMR/internal/types"
)

const (
	eventRun  = "run"
	eventTask = "task"

	opStart  = "start"
	opFinish = "finish"
	opAdd    = "add"
)

// event is one change to the run bookkeeping. Events are applied in log
// order, so replaying them rebuilds the same state.
type event struct {
	Type      string          `json:"type"`      // "run" or "task"
	Operation string          `json:"operation"` // "start", "finish" or "add"
	RunID     string          `json:"run_id"`
	Run       *types.RunState `json:"run,omitempty"`
	Key       string          `json:"key,omitempty"`
	Task      *types.Task     `json:"task,omitempty"`
	Processed int64           `json:"processed,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// history is the state kept by the journal.
type history struct {
	Runs    map[string]*types.RunState `json:"runs"`
	Version uint64                     `json:"version"`
}

// journal applies run events to the run history. It implements raft.FSM so
// the history can be snapshotted and restored the same way a replicated
// state machine is.
type journal struct {
	mu     sync.RWMutex
	state  *history
	logger *logger.Logger
}

var _ raft.FSM = (*journal)(nil)

func newJournal(lg *logger.Logger) *journal {
	return &journal{
		state:  &history{Runs: make(map[string]*types.RunState)},
		logger: lg,
	}
}

// Apply implements raft.FSM.
func (j *journal) Apply(log *raft.Log) interface{} {
	j.mu.Lock()
	defer j.mu.Unlock()

	var ev event
	if err := json.Unmarshal(log.Data, &ev); err != nil {
		j.logger.Error("Failed to unmarshal event: %v", err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch ev.Type {
	case eventRun:
		return j.applyRun(&ev)
	case eventTask:
		return j.applyTask(&ev)
	default:
		j.logger.Warn("Unknown event type: %s", ev.Type)
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}
}

func (j *journal) applyRun(ev *event) interface{} {
	switch ev.Operation {
	case opStart:
		if ev.Run == nil {
			return fmt.Errorf("run start without run state")
		}
		run := *ev.Run
		run.Status = types.RunRunning
		run.Started = ev.Timestamp
		if run.Tasks == nil {
			run.Tasks = make(map[string]*types.Task)
		}
		j.state.Runs[ev.RunID] = &run
		j.state.Version++
		return nil

	case opFinish:
		run, exists := j.state.Runs[ev.RunID]
		if !exists {
			return fmt.Errorf("run not found: %s", ev.RunID)
		}
		run.Finished = ev.Timestamp
		if ev.Error != "" {
			run.Status = types.RunAborted
		} else {
			run.Status = types.RunCommitted
		}
		j.state.Version++
		return nil

	default:
		return fmt.Errorf("unknown run operation: %s", ev.Operation)
	}
}

func (j *journal) applyTask(ev *event) interface{} {
	run, exists := j.state.Runs[ev.RunID]
	if !exists {
		return fmt.Errorf("run not found: %s", ev.RunID)
	}

	if ev.Operation == opAdd {
		if ev.Task == nil {
			return fmt.Errorf("task add without task")
		}
		task := *ev.Task
		task.Status = types.TaskPending
		run.Tasks[ev.Key] = &task
		j.state.Version++
		return nil
	}

	task, exists := run.Tasks[ev.Key]
	if !exists {
		return fmt.Errorf("task not found: run_id=%s key=%s", ev.RunID, ev.Key)
	}
	switch ev.Operation {
	case opStart:
		task.Status = types.TaskRunning
		task.Started = ev.Timestamp
	case opFinish:
		task.Finished = ev.Timestamp
		task.Processed = ev.Processed
		if ev.Error != "" {
			task.Status = types.TaskFailed
			task.Error = ev.Error
		} else {
			task.Status = types.TaskCompleted
		}
	default:
		return fmt.Errorf("unknown task operation: %s", ev.Operation)
	}
	j.state.Version++
	return nil
}

// Snapshot implements raft.FSM.
func (j *journal) Snapshot() (raft.FSMSnapshot, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return &snapshot{state: j.copyState()}, nil
}

// Restore implements raft.FSM.
func (j *journal) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var state history
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if state.Runs == nil {
		state.Runs = make(map[string]*types.RunState)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = &state
	return nil
}

// run returns a copy of run id.
func (j *journal) run(id string) (*types.RunState, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	run, exists := j.state.Runs[id]
	if !exists {
		return nil, false
	}
	return copyRun(run), true
}

// runIDs returns the ids of all runs, oldest first.
func (j *journal) runIDs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	ids := make([]string, 0, len(j.state.Runs))
	for id := range j.state.Runs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := j.state.Runs[a].Started.Compare(j.state.Runs[b].Started); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return ids
}

func (j *journal) copyState() *history {
	cp := &history{
		Runs:    make(map[string]*types.RunState, len(j.state.Runs)),
		Version: j.state.Version,
	}
	for k, v := range j.state.Runs {
		cp.Runs[k] = copyRun(v)
	}
	return cp
}

func copyRun(run *types.RunState) *types.RunState {
	cp := *run
	cp.Tasks = make(map[string]*types.Task, len(run.Tasks))
	for k, t := range run.Tasks {
		task := *t
		cp.Tasks[k] = &task
	}
	return &cp
}

// snapshot implements raft.FSMSnapshot
type snapshot struct {
	state *history
}

// Persist writes the snapshot to a sink
func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	data, err := json.Marshal(s.state)
	if err != nil {
		sink.Cancel()
		return err
	}

	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return err
	}

	return sink.Close()
}

func (s *snapshot) Release() {}

// writerSink is a raft.SnapshotSink over a plain writer.
type writerSink struct {
	io.Writer
	cancelled bool
}

func (s *writerSink) ID() string { return "state" }

func (s *writerSink) Cancel() error {
	s.cancelled = true
	return nil
}

func (s *writerSink) Close() error {
	if s.cancelled {
		return fmt.Errorf("snapshot cancelled")
	}
	return nil
}
