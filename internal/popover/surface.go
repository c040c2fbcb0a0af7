package popover

import "slices"

// Bus is an in-process Document. Surfaces without a DOM (the terminal UI,
// tests) dispatch their input through it.
type Bus struct {
	next      int
	listeners map[EventKind]map[int]func(Event)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[EventKind]map[int]func(Event))}
}

// AddListener implements Document.
func (b *Bus) AddListener(kind EventKind, fn func(Event)) func() {
	if b.listeners[kind] == nil {
		b.listeners[kind] = make(map[int]func(Event))
	}
	id := b.next
	b.next++
	b.listeners[kind][id] = fn
	return func() { delete(b.listeners[kind], id) }
}

// Dispatch delivers e to every listener of its kind. Listeners may remove
// themselves while being dispatched.
func (b *Bus) Dispatch(e Event) {
	fns := make([]func(Event), 0, len(b.listeners[e.Kind]))
	ids := make([]int, 0, len(b.listeners[e.Kind]))
	for id := range b.listeners[e.Kind] {
		ids = append(ids, id)
	}
	// Registration order.
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, b.listeners[e.Kind][id])
	}
	for _, fn := range fns {
		fn(e)
	}
}

// Listeners is the number of registered listeners.
func (b *Bus) Listeners() int {
	n := 0
	for _, l := range b.listeners {
		n += len(l)
	}
	return n
}

// FrameQueue is a FrameScheduler flushed explicitly by the surface's render
// loop.
type FrameQueue struct {
	next    int
	pending map[int]func()
	order   []int
}

// NewFrameQueue returns an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{pending: make(map[int]func())}
}

// RequestFrame implements FrameScheduler.
func (q *FrameQueue) RequestFrame(fn func()) func() {
	id := q.next
	q.next++
	q.pending[id] = fn
	q.order = append(q.order, id)
	return func() { delete(q.pending, id) }
}

// Pending is the number of frames waiting to run.
func (q *FrameQueue) Pending() int { return len(q.pending) }

// Flush runs the frames requested before the call. Frames requested while
// flushing wait for the next Flush.
func (q *FrameQueue) Flush() {
	order := q.order
	q.order = nil
	for _, id := range order {
		fn, ok := q.pending[id]
		if !ok {
			continue
		}
		delete(q.pending, id)
		fn()
	}
}

// StaticMeasurer reports fixed sizes per target.
type StaticMeasurer map[string]Size

// Measure implements Measurer.
func (s StaticMeasurer) Measure(target string) (Size, bool) {
	size, ok := s[target]
	return size, ok
}
