package mapreduce

import (
	"fmt"
	"testing"
)

func TestRangePartitionerBoundaries(t *testing.T) {
	r, err := NewRangePartitioner(65223)
	if err != nil {
		t.Fatalf("NewRangePartitioner failed: %v", err)
	}
	const n = 4
	w := r.Width(n)
	if w != 65223/4+1 {
		t.Fatalf("Width = %d", w)
	}

	for i := 0; i < n; i++ {
		if got := r.Partition(w*i, n); got != i {
			t.Fatalf("Key %d at boundary %d routed to %d", w*i, i, got)
		}
		if i > 0 {
			if got := r.Partition(w*i-1, n); got != i-1 {
				t.Fatalf("Key %d just below boundary %d routed to %d", w*i-1, i, got)
			}
		}
	}
	if got := r.Partition(65223, n); got != n-1 {
		t.Fatalf("MaxKey routed to %d", got)
	}
}

func TestRangePartitionerOutOfRange(t *testing.T) {
	r := &RangePartitioner{MaxKey: 99}
	cases := []int{-1, -500, 100 * 10, 4 * r.Width(4)}
	for _, k := range cases {
		if got := r.Partition(k, 4); got != -1 {
			t.Fatalf("Key %d should have no band, got %d", k, got)
		}
	}
	if _, err := NewRangePartitioner(-1); err == nil {
		t.Fatalf("Negative MaxKey should be rejected")
	}
}

func TestRangePartitionerKeepsOrder(t *testing.T) {
	r := &RangePartitioner{MaxKey: 1000}
	prev := 0
	for k := 0; k <= 1000; k++ {
		p := r.Partition(k, 7)
		if p < prev {
			t.Fatalf("Key %d routed to %d after a key routed to %d", k, p, prev)
		}
		prev = p
	}
	if prev != 6 {
		t.Fatalf("Largest key routed to %d, want 6", prev)
	}
}

func TestHashPartitionerDeterministicAndInRange(t *testing.T) {
	var hs HashPartitioner[string]
	var hi HashPartitioner[int]
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key-%d", i)
		p := hs.Partition(key, 5)
		if p < 0 || p >= 5 {
			t.Fatalf("Partition %d out of range for %q", p, key)
		}
		if again := hs.Partition(key, 5); again != p {
			t.Fatalf("Partition of %q changed from %d to %d", key, p, again)
		}
		if q := hi.Partition(i, 5); q < 0 || q >= 5 {
			t.Fatalf("Partition %d out of range for %d", q, i)
		}
	}
	if hs.Partition("a", 1) != 0 {
		t.Fatalf("Single partition must always be 0")
	}
}
