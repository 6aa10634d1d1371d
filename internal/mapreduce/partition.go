package mapreduce

import (
	"fmt"
	"hash/fnv"
)

// Partitioner maps a key to a reduce partition in [0, numPartitions).
// It must depend on the key alone. Indexes outside the range are routed to
// partition 0 by the engine.
type Partitioner[K any] interface {
	Partition(key K, numPartitions int) int
}

// PartitionFunc adapts a function to Partitioner.
type PartitionFunc[K any] func(key K, numPartitions int) int

func (f PartitionFunc[K]) Partition(key K, numPartitions int) int { return f(key, numPartitions) }

// HashPartitioner spreads keys uniformly by the fnv-1a hash of their text form.
type HashPartitioner[K any] struct{}

func (HashPartitioner[K]) Partition(key K, numPartitions int) int {
	h := fnv.New32a()
	switch k := any(key).(type) {
	case string:
		h.Write([]byte(k))
	case []byte:
		h.Write(k)
	default:
		fmt.Fprint(h, k)
	}
	return int(h.Sum32()&0x7fffffff) % numPartitions
}

// RangePartitioner assigns contiguous bands of integer keys to partitions so
// that concatenating partitions in index order yields globally sorted keys.
// With N partitions each band is MaxKey/N + 1 wide; keys outside
// [0, N*width) have no band and are reported as -1.
type RangePartitioner struct {
	MaxKey int
}

// NewRangePartitioner returns a partitioner for keys in [0, maxKey].
func NewRangePartitioner(maxKey int) (*RangePartitioner, error) {
	if maxKey < 0 {
		return nil, fmt.Errorf("MaxKey cannot be negative, got %d", maxKey)
	}
	return &RangePartitioner{MaxKey: maxKey}, nil
}

// Width returns the band width for numPartitions partitions.
func (r *RangePartitioner) Width(numPartitions int) int {
	return r.MaxKey/numPartitions + 1
}

func (r *RangePartitioner) Partition(key int, numPartitions int) int {
	if key < 0 {
		return -1
	}
	i := key / r.Width(numPartitions)
	if i >= numPartitions {
		return -1
	}
	return i
}
