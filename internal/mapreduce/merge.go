package mapreduce

import (
	"container/heap"
	"iter"

	"BatchMR/internal/spill"
	"BatchMR/internal/types"
)

// cursor yields sorted pairs one at a time.
type cursor[K, V any] interface {
	next() (types.KeyValue[K, V], bool, error)
}

type sliceCursor[K, V any] struct {
	pairs []types.KeyValue[K, V]
	pos   int
}

func (c *sliceCursor[K, V]) next() (types.KeyValue[K, V], bool, error) {
	if c.pos >= len(c.pairs) {
		var zero types.KeyValue[K, V]
		return zero, false, nil
	}
	kv := c.pairs[c.pos]
	c.pos++
	return kv, true, nil
}

type spillCursor[K, V any] struct {
	reader *spill.Reader
}

func (c *spillCursor[K, V]) next() (types.KeyValue[K, V], bool, error) {
	data, ok, err := c.reader.Next()
	if err != nil || !ok {
		var zero types.KeyValue[K, V]
		return zero, false, err
	}
	kv, err := decodePair[K, V](data)
	if err != nil {
		return kv, false, err
	}
	return kv, true, nil
}

type head[K, V any] struct {
	kv  types.KeyValue[K, V]
	ord int
	src cursor[K, V]
}

type headHeap[K, V any] struct {
	items   []*head[K, V]
	compare func(a, b K) int
}

func (h *headHeap[K, V]) Len() int { return len(h.items) }

func (h *headHeap[K, V]) Less(i, j int) bool {
	if c := h.compare(h.items[i].kv.Key, h.items[j].kv.Key); c != 0 {
		return c < 0
	}
	return h.items[i].ord < h.items[j].ord
}

func (h *headHeap[K, V]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *headHeap[K, V]) Push(x any) { h.items = append(h.items, x.(*head[K, V])) }

func (h *headHeap[K, V]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// merger is a k-way merge of sorted cursors. Equal keys come out in cursor
// order, so the merge is stable when cursors are given in emission order.
type merger[K, V any] struct {
	h       *headHeap[K, V]
	started bool
	sources []cursor[K, V]
}

func newMerger[K, V any](compare func(a, b K) int, sources []cursor[K, V]) *merger[K, V] {
	return &merger[K, V]{
		h:       &headHeap[K, V]{compare: compare},
		sources: sources,
	}
}

func (m *merger[K, V]) init() error {
	m.started = true
	for i, src := range m.sources {
		kv, ok, err := src.next()
		if err != nil {
			return err
		}
		if ok {
			m.h.items = append(m.h.items, &head[K, V]{kv: kv, ord: i, src: src})
		}
	}
	heap.Init(m.h)
	return nil
}

func (m *merger[K, V]) next() (types.KeyValue[K, V], bool, error) {
	var zero types.KeyValue[K, V]
	if !m.started {
		if err := m.init(); err != nil {
			return zero, false, err
		}
	}
	if m.h.Len() == 0 {
		return zero, false, nil
	}

	top := m.h.items[0]
	kv := top.kv
	nextKV, ok, err := top.src.next()
	if err != nil {
		return zero, false, err
	}
	if ok {
		top.kv = nextKV
		heap.Fix(m.h, 0)
	} else {
		heap.Pop(m.h)
	}
	return kv, true, nil
}

// grouper walks a sorted cursor and presents consecutive pairs with equal
// keys as one group.
type grouper[K, V any] struct {
	src     cursor[K, V]
	compare func(a, b K) int
	cur     types.KeyValue[K, V]
	has     bool
	err     error
}

func newGrouper[K, V any](src cursor[K, V], compare func(a, b K) int) *grouper[K, V] {
	g := &grouper[K, V]{src: src, compare: compare}
	g.advance()
	return g
}

func (g *grouper[K, V]) advance() {
	g.cur, g.has, g.err = g.src.next()
	if g.err != nil {
		g.has = false
	}
}

// each calls fn once per distinct key in ascending order. Values fn leaves
// unconsumed are skipped.
func (g *grouper[K, V]) each(fn func(key K, values iter.Seq[V]) error) error {
	for g.has {
		key := g.cur.Key
		values := func(yield func(V) bool) {
			for g.has && g.compare(g.cur.Key, key) == 0 {
				v := g.cur.Value
				g.advance()
				if !yield(v) {
					return
				}
			}
		}
		if err := fn(key, values); err != nil {
			return err
		}
		for g.has && g.compare(g.cur.Key, key) == 0 {
			g.advance()
		}
		if g.err != nil {
			return g.err
		}
	}
	return g.err
}
