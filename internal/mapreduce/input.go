package mapreduce

import (
	"context"
	"fmt"

	"BatchMR/internal/types"
)

// Lines is an in-memory Input; each element is one split of lines.
type Lines [][]string

func (l Lines) NumSplits() int { return len(l) }

func (l Lines) ScanSplit(ctx context.Context, split int, fn func(types.Record) error) error {
	if split < 0 || split >= len(l) {
		return fmt.Errorf("split %d out of range [0, %d)", split, len(l))
	}
	for i, line := range l[split] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(types.Record{Split: split, Line: int64(i + 1), Text: line}); err != nil {
			return err
		}
	}
	return nil
}
