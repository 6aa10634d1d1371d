package types

import "time"

// TaskStatus represents the status of a map or reduce task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskKind distinguishes map tasks from reduce tasks
type TaskKind string

const (
	MapTask    TaskKind = "map"
	ReduceTask TaskKind = "reduce"
)

// RunStatus represents the status of a whole job run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCommitted RunStatus = "committed"
	RunAborted   RunStatus = "aborted"
)

// Task is one unit of work inside a run: a map task over one split or a
// reduce task over one partition.
type Task struct {
	ID        string     `json:"id"`
	Kind      TaskKind   `json:"kind"`
	Index     int        `json:"index"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Started   time.Time  `json:"started"`
	Finished  time.Time  `json:"finished"`
	Processed int64      `json:"processed"`
}

// RunState is the bookkeeping kept for a single job run
type RunState struct {
	ID       string           `json:"id"`
	Job      string           `json:"job"`
	Input    string           `json:"input"`
	Output   string           `json:"output"`
	Status   RunStatus        `json:"status"`
	Tasks    map[string]*Task `json:"tasks"`
	Started  time.Time        `json:"started"`
	Finished time.Time        `json:"finished"`
}
