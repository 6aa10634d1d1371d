package storage

import (
	"bufio"
	"fmt"
	"iter"

	"BatchMR/internal/logger"
	"BatchMR/internal/types"
)

const (
	temporaryDir  = "_temporary"
	successMarker = "_SUCCESS"
)

// SegmentName returns the file name of the output segment of partition p.
func SegmentName(p int) string {
	return fmt.Sprintf("part-r-%05d", p)
}

// Sink writes one segment per partition under an output location. Segments
// are staged in <location>/_temporary/<run-id> and only moved into place by
// Commit; Abort removes the location so no half-written result remains.
type Sink struct {
	client   Client
	location string
	staging  string
	keep     bool
	prepared bool
	reused   bool // location was an empty directory before Prepare
	logger   *logger.Logger
}

// NewSink returns a sink for location. Prepare removes an existing
// non-empty location unless keep is set, in which case it is a conflict.
func NewSink(client Client, location, runID string, keep bool, lg *logger.Logger) *Sink {
	if lg == nil {
		lg = logger.Discard()
	}
	return &Sink{
		client:   client,
		location: location,
		staging:  client.Join(location, temporaryDir, runID),
		keep:     keep,
		logger:   lg.With("sink"),
	}
}

// Location returns the output location.
func (s *Sink) Location() string {
	return s.location
}

// Prepare clears the output location and creates the staging directory.
func (s *Sink) Prepare() error {
	exist, err := s.client.Exists(s.location)
	if err != nil {
		return types.IOError("stat output", s.location, err)
	}
	if exist {
		empty, err := s.isEmptyDir()
		if err != nil {
			return err
		}
		s.reused = empty
		if !empty {
			if s.keep {
				return fmt.Errorf("output location %s is not empty: %w", s.location, types.ErrOutputConflict)
			}
			if err := s.client.RemoveAll(s.location); err != nil {
				return fmt.Errorf("failed to clear output location %s: %w: %w", s.location, types.ErrOutputConflict, err)
			}
			s.logger.Info("Existing output removed: location=%s", s.location)
		}
	}

	if err := s.client.MkdirAll(s.staging); err != nil {
		return types.IOError("create staging directory", s.staging, err)
	}
	s.prepared = true
	return nil
}

func (s *Sink) isEmptyDir() (bool, error) {
	isDir, err := s.client.IsDir(s.location)
	if err != nil {
		return false, types.IOError("stat output", s.location, err)
	}
	if !isDir {
		return false, nil
	}
	infos, err := s.client.List(s.location)
	if err != nil {
		return false, types.IOError("list output", s.location, err)
	}
	return len(infos) == 0, nil
}

// WriteSegment writes the lines of partition p into the staging directory.
// Segments of different partitions may be written concurrently.
func (s *Sink) WriteSegment(p int, lines iter.Seq[string]) error {
	if !s.prepared {
		return fmt.Errorf("sink for %s is not prepared", s.location)
	}
	name := s.client.Join(s.staging, SegmentName(p))

	wc, err := s.client.OpenWriteCloser(name)
	if err != nil {
		return types.IOError("create segment", name, err)
	}
	w := bufio.NewWriter(wc)
	var n int
	for line := range lines {
		if _, err := w.WriteString(line); err != nil {
			wc.Close()
			return types.IOError("write segment", name, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			wc.Close()
			return types.IOError("write segment", name, err)
		}
		n++
	}
	if err := w.Flush(); err != nil {
		wc.Close()
		return types.IOError("flush segment", name, err)
	}
	if err := wc.Close(); err != nil {
		return types.IOError("close segment", name, err)
	}

	s.logger.Debug("Segment staged: partition=%d path=%s lines=%d", p, name, n)
	return nil
}

// Commit moves staged segments into the output location and writes the
// _SUCCESS marker.
func (s *Sink) Commit(partitions int) error {
	if !s.prepared {
		return fmt.Errorf("sink for %s is not prepared", s.location)
	}
	for p := 0; p < partitions; p++ {
		from := s.client.Join(s.staging, SegmentName(p))
		to := s.client.Join(s.location, SegmentName(p))
		if err := s.client.Rename(from, to); err != nil {
			return types.IOError("commit segment", to, err)
		}
	}
	if err := s.client.RemoveAll(s.client.Join(s.location, temporaryDir)); err != nil {
		return types.IOError("remove staging directory", s.staging, err)
	}

	marker := s.client.Join(s.location, successMarker)
	wc, err := s.client.OpenWriteCloser(marker)
	if err != nil {
		return types.IOError("create success marker", marker, err)
	}
	if err := wc.Close(); err != nil {
		return types.IOError("close success marker", marker, err)
	}

	s.logger.Info("Output committed: location=%s segments=%d", s.location, partitions)
	return nil
}

// Abort removes everything the sink wrote. A sink that never got past
// Prepare leaves the location untouched. A location that was an empty
// directory before Prepare is emptied again but kept.
func (s *Sink) Abort() error {
	if !s.prepared {
		return nil
	}
	s.prepared = false
	if s.reused {
		if err := s.removeContents(); err != nil {
			return err
		}
	} else if err := s.client.RemoveAll(s.location); err != nil {
		return types.IOError("remove aborted output", s.location, err)
	}
	s.logger.Warn("Output aborted: location=%s", s.location)
	return nil
}

func (s *Sink) removeContents() error {
	infos, err := s.client.List(s.location)
	if err != nil {
		return types.IOError("list aborted output", s.location, err)
	}
	for _, info := range infos {
		name := s.client.Join(s.location, info.Name())
		if err := s.client.RemoveAll(name); err != nil {
			return types.IOError("remove aborted output", name, err)
		}
	}
	return nil
}

// FormatRecord renders a pair as "key<TAB>value", or the key alone when the
// value is types.Null.
func FormatRecord[K, V any](kv types.KeyValue[K, V]) string {
	if _, ok := any(kv.Value).(types.Null); ok {
		return fmt.Sprint(kv.Key)
	}
	return fmt.Sprintf("%v\t%v", kv.Key, kv.Value)
}

// Lines renders pairs with FormatRecord.
func Lines[K, V any](kvs []types.KeyValue[K, V]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, kv := range kvs {
			if !yield(FormatRecord(kv)) {
				return
			}
		}
	}
}
