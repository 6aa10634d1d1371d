// Package spill holds sorted runs that no longer fit in a map task's memory
// buffer. Runs are stored as contiguous index ranges in a Bolt-backed log and
// read back in index order.
package spill

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	raft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"BatchMR/internal/logger"
	"BatchMR/internal/types"
)

// ErrStoreFull is returned when an append would exceed Options.MaxBytes.
var ErrStoreFull = errors.New("spill store full")

// Options configures a Store.
type Options struct {
	Dir      string // parent directory for the per-run store; os.TempDir() when empty
	MaxBytes int64  // upper bound on live spilled bytes; 0 means unbounded
}

// Segment is a contiguous range of entries written by one Append call.
type Segment struct {
	First uint64
	Last  uint64
	Bytes int64
}

// Len returns the number of entries in the segment.
func (s Segment) Len() int {
	if s.Last < s.First {
		return 0
	}
	return int(s.Last-s.First) + 1
}

// Store is an append-only spill log. It is safe for concurrent use.
type Store struct {
	dir      string
	db       *raftboltdb.BoltStore
	maxBytes int64
	next     atomic.Uint64
	used     atomic.Int64
	closeMu  sync.Once
	closeErr error
	logger   *logger.Logger
}

// Open creates a fresh store in a new temporary directory under opts.Dir.
func Open(opts Options, lg *logger.Logger) (*Store, error) {
	if lg == nil {
		lg = logger.Discard()
	}
	if opts.MaxBytes < 0 {
		return nil, fmt.Errorf("MaxBytes cannot be negative")
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, types.IOError("create spill parent", opts.Dir, err)
		}
	}

	dir, err := os.MkdirTemp(opts.Dir, "batchmr-spill-")
	if err != nil {
		return nil, types.IOError("create spill directory", opts.Dir, err)
	}

	db, err := raftboltdb.New(raftboltdb.Options{
		Path:   filepath.Join(dir, "spill.db"),
		NoSync: true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, types.IOError("open spill store", dir, err)
	}

	s := &Store{
		dir:      dir,
		db:       db,
		maxBytes: opts.MaxBytes,
		logger:   lg.With("spill"),
	}
	s.next.Store(1)
	s.logger.Debug("Spill store opened: dir=%s max_bytes=%d", dir, opts.MaxBytes)
	return s, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Used returns the number of live spilled bytes.
func (s *Store) Used() int64 {
	return s.used.Load()
}

// Append writes entries as one contiguous segment.
func (s *Store) Append(entries [][]byte) (Segment, error) {
	if len(entries) == 0 {
		return Segment{First: 1, Last: 0}, nil
	}

	var size int64
	for _, e := range entries {
		size += int64(len(e))
	}
	if used := s.used.Add(size); s.maxBytes > 0 && used > s.maxBytes {
		s.used.Add(-size)
		return Segment{}, fmt.Errorf("failed to spill %d bytes (limit %d): %w: %w", size, s.maxBytes, types.ErrIO, ErrStoreFull)
	}

	n := uint64(len(entries))
	last := s.next.Add(n) - 1
	first := last - n + 1

	now := time.Now()
	logs := make([]*raft.Log, len(entries))
	for i, e := range entries {
		logs[i] = &raft.Log{
			Index:      first + uint64(i),
			Type:       raft.LogCommand,
			Data:       e,
			AppendedAt: now,
		}
	}
	if err := s.db.StoreLogs(logs); err != nil {
		s.used.Add(-size)
		return Segment{}, types.IOError("write spill segment", s.dir, err)
	}

	return Segment{First: first, Last: last, Bytes: size}, nil
}

// Release deletes a segment once it has been consumed.
func (s *Store) Release(seg Segment) error {
	if seg.Len() == 0 {
		return nil
	}
	if err := s.db.DeleteRange(seg.First, seg.Last); err != nil {
		return types.IOError("release spill segment", s.dir, err)
	}
	s.used.Add(-seg.Bytes)
	return nil
}

// Reader returns a reader over seg.
func (s *Store) Reader(seg Segment) *Reader {
	return &Reader{store: s, seg: seg, pos: seg.First}
}

// Close closes the database and removes the store directory.
func (s *Store) Close() error {
	s.closeMu.Do(func() {
		if err := s.db.Close(); err != nil {
			s.closeErr = types.IOError("close spill store", s.dir, err)
		}
		if err := os.RemoveAll(s.dir); err != nil && s.closeErr == nil {
			s.closeErr = types.IOError("remove spill directory", s.dir, err)
		}
		s.logger.Debug("Spill store closed: dir=%s", s.dir)
	})
	return s.closeErr
}

// Reader streams the entries of one segment in order.
type Reader struct {
	store *Store
	seg   Segment
	pos   uint64
}

// Next returns the next entry, or ok=false after the last one.
func (r *Reader) Next() (data []byte, ok bool, err error) {
	if r.seg.Len() == 0 || r.pos > r.seg.Last {
		return nil, false, nil
	}
	var l raft.Log
	if err := r.store.db.GetLog(r.pos, &l); err != nil {
		if errors.Is(err, raft.ErrLogNotFound) {
			return nil, false, fmt.Errorf("failed to read spill entry %d: %w: entry missing", r.pos, types.ErrIO)
		}
		return nil, false, types.IOError("read spill entry from", r.store.dir, err)
	}
	r.pos++
	return l.Data, true, nil
}
