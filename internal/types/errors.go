package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by a run. Callers match them with errors.Is.
var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrPartitionRouting = errors.New("partition routing failure")
	ErrOutputConflict   = errors.New("output conflict")
	ErrIO               = errors.New("io failure")
	ErrNilKey           = errors.New("nil key emitted")
)

// RecordError describes a failure tied to one input record.
type RecordError struct {
	Split int
	Line  int64
	Text  string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("split %d line %d %q: %v", e.Split, e.Line, e.Text, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Malformed wraps a parse failure of rec as ErrMalformedRecord.
func Malformed(rec Record, cause error) error {
	return &RecordError{
		Split: rec.Split,
		Line:  rec.Line,
		Text:  rec.Text,
		Err:   fmt.Errorf("%w: %v", ErrMalformedRecord, cause),
	}
}

// IOError wraps err as ErrIO with the failing operation and path.
func IOError(op, path string, err error) error {
	return fmt.Errorf("failed to %s %s: %w: %w", op, path, ErrIO, err)
}
