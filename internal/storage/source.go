package storage

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"BatchMR/internal/logger"
	"BatchMR/internal/types"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineBytes      = 16 * 1024 * 1024
)

// Source reads line records from an input location. A file location is a
// single split; a directory location has one split per regular file, in name
// order, ignoring names that start with "_" or ".".
type Source struct {
	client   Client
	location string
	splits   []string
	logger   *logger.Logger
}

// NewSource lists the splits of location.
func NewSource(client Client, location string, lg *logger.Logger) (*Source, error) {
	if lg == nil {
		lg = logger.Discard()
	}
	exist, err := client.Exists(location)
	if err != nil {
		return nil, types.IOError("stat input", location, err)
	}
	if !exist {
		return nil, fmt.Errorf("input location %s does not exist: %w", location, types.ErrIO)
	}

	s := &Source{client: client, location: location, logger: lg.With("source")}

	isDir, err := client.IsDir(location)
	if err != nil {
		return nil, types.IOError("stat input", location, err)
	}
	if !isDir {
		s.splits = []string{location}
	} else {
		infos, err := client.List(location)
		if err != nil {
			return nil, types.IOError("list input", location, err)
		}
		for _, info := range infos {
			if info.IsDir() || hiddenName(info.Name()) {
				continue
			}
			s.splits = append(s.splits, client.Join(location, info.Name()))
		}
	}

	s.logger.Info("Input listed: location=%s splits=%d", location, len(s.splits))
	return s, nil
}

func hiddenName(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

// Splits returns the split paths in order.
func (s *Source) Splits() []string {
	return s.splits
}

func (s *Source) NumSplits() int {
	return len(s.splits)
}

// ScanSplit calls fn for every line of the split. A trailing "\r" is
// dropped, a final line without a newline is still a record.
func (s *Source) ScanSplit(ctx context.Context, split int, fn func(types.Record) error) error {
	if split < 0 || split >= len(s.splits) {
		return fmt.Errorf("split %d out of range [0, %d)", split, len(s.splits))
	}
	name := s.splits[split]

	rc, err := s.client.OpenReadCloser(name)
	if err != nil {
		return types.IOError("open split", name, err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineBytes)

	var line int64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		rec := types.Record{
			Split: split,
			Line:  line,
			Text:  strings.TrimSuffix(scanner.Text(), "\r"),
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return types.IOError("read split", name, err)
	}

	s.logger.Debug("Split scanned: split=%d path=%s lines=%d", split, name, line)
	return nil
}
