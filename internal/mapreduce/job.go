package mapreduce

import (
	"errors"
	"fmt"
	"iter"

	"BatchMR/internal/types"
)

var (
	// ErrSkipRecord marks a record the mapper chose not to process.
	ErrSkipRecord = errors.New("skip record")
	// ErrUnsafeCombiner is returned when a combiner is paired with a reducer
	// whose output depends on the position of values.
	ErrUnsafeCombiner = errors.New("combiner not allowed with a position-sensitive reducer")
)

// SkipRecord returns an error that makes the engine skip the current record
// and record reason as a diagnostic.
func SkipRecord(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipRecord, reason)
}

// Emitter receives pairs from a map, combine or reduce function.
type Emitter[K, V any] interface {
	Emit(key K, value V) error
}

// EmitFunc adapts a function to Emitter.
type EmitFunc[K, V any] func(key K, value V) error

func (f EmitFunc[K, V]) Emit(key K, value V) error { return f(key, value) }

// Mapper turns one input record into zero or more pairs.
type Mapper[K, V any] interface {
	Map(rec types.Record, emit Emitter[K, V]) error
}

// MapperFunc adapts a function to Mapper.
type MapperFunc[K, V any] func(rec types.Record, emit Emitter[K, V]) error

func (f MapperFunc[K, V]) Map(rec types.Record, emit Emitter[K, V]) error { return f(rec, emit) }

// Reducer consumes one group. values may be ranged over once.
type Reducer[K, V, OK, OV any] interface {
	Reduce(key K, values iter.Seq[V], emit Emitter[OK, OV]) error
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc[K, V, OK, OV any] func(key K, values iter.Seq[V], emit Emitter[OK, OV]) error

func (f ReducerFunc[K, V, OK, OV]) Reduce(key K, values iter.Seq[V], emit Emitter[OK, OV]) error {
	return f(key, values, emit)
}

// PositionSensitive is implemented by reducers whose output depends on how
// many values they have seen so far. Such reducers cannot be combiners and
// cannot be paired with one.
type PositionSensitive interface {
	PositionSensitive() bool
}

// Rebaser is implemented by reducers whose partition-local output must be
// shifted once every partition is done. offset is the number of output
// records produced by all lower-indexed partitions.
type Rebaser[OK, OV any] interface {
	Rebase(kv types.KeyValue[OK, OV], offset int) types.KeyValue[OK, OV]
}

// Job binds the user functions of one map/reduce job. A Job must not be
// modified while it runs.
type Job[K, V, OK, OV any] struct {
	Name          string
	NumPartitions int

	// NewMapper is called once per map task.
	NewMapper func(task int) Mapper[K, V]
	// NewCombiner is optional and called once per map task.
	NewCombiner func(task int) Reducer[K, V, K, V]
	// NewReducer is called once per partition.
	NewReducer func(partition int) Reducer[K, V, OK, OV]

	// Partitioner defaults to HashPartitioner.
	Partitioner Partitioner[K]
	// Compare orders keys inside a partition and defines key equality.
	Compare func(a, b K) int

	// StrictRouting turns a partition index outside [0, NumPartitions) into
	// a run failure instead of a fallback to partition 0.
	StrictRouting bool
}

// Validate checks that the job can run.
func (j *Job[K, V, OK, OV]) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if j.NumPartitions <= 0 {
		return fmt.Errorf("job %s: NumPartitions must be positive, got %d", j.Name, j.NumPartitions)
	}
	if j.NewMapper == nil {
		return fmt.Errorf("job %s: NewMapper cannot be nil", j.Name)
	}
	if j.NewReducer == nil {
		return fmt.Errorf("job %s: NewReducer cannot be nil", j.Name)
	}
	if j.Compare == nil {
		return fmt.Errorf("job %s: Compare cannot be nil", j.Name)
	}
	if j.NewCombiner != nil {
		if positionSensitive(j.NewReducer(0)) || positionSensitive(j.NewCombiner(0)) {
			return fmt.Errorf("job %s: %w", j.Name, ErrUnsafeCombiner)
		}
	}
	return nil
}

func positionSensitive(v any) bool {
	ps, ok := v.(PositionSensitive)
	return ok && ps.PositionSensitive()
}
