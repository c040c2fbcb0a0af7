package popover

import (
	"time"

	"github.com/google/uuid"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Kind distinguishes the two popovers that share the placement algorithm.
type Kind int

const (
	KindOverflow Kind = iota
	KindDetail
)

// EventKind is a document-level input event.
type EventKind int

const (
	PointerDown EventKind = iota
	KeyDown
)

// Event is delivered to document listeners.
type Event struct {
	Kind EventKind
	X, Y float64
	// Target identifies the element under the pointer.
	Target string
	Key    string
}

// Document registers document-level listeners. The returned func removes
// the listener.
type Document interface {
	AddListener(kind EventKind, fn func(Event)) (remove func())
}

// FrameScheduler runs fn on the next rendering frame. The returned func
// cancels a frame that has not run yet.
type FrameScheduler interface {
	RequestFrame(fn func()) (cancel func())
}

// Measurer reports the rendered size of a target. ok is false when the
// surface cannot measure it.
type Measurer interface {
	Measure(target string) (size Size, ok bool)
}

// State is the data behind an open popover.
type State struct {
	AnchorDate       time.Time
	OverflowEvents   []model.VisualEvent
	Event            *model.VisualEvent
	AnchorRect       Rect
	PreviousPosition *Position
}

// Popover is one open instance. ID is unique per open; callbacks scheduled
// for an instance only act while that ID is the open one.
type Popover struct {
	ID      string
	Kind    Kind
	State   State
	Trigger string

	// Position is what is on screen now; Target is where it is heading.
	Position Placement
	Target   Placement
	Settled  bool

	closed      bool
	removers    []func()
	cancelFrame func()
}

// Closed reports whether the popover has been torn down.
func (p *Popover) Closed() bool { return p.closed }

// Manager owns at most one open popover.
type Manager struct {
	doc      Document
	frames   FrameScheduler
	measurer Measurer
	opts     Options
	onSelect func(model.VisualEvent, Rect)

	// ContentTarget is the element measured for the popover's intrinsic size.
	ContentTarget string

	current  *Popover
	previous *Position
}

// NewManager wires a Manager to its surface. onSelect receives events picked
// from an overflow popover; it may be nil.
func NewManager(doc Document, frames FrameScheduler, measurer Measurer, opts Options, onSelect func(model.VisualEvent, Rect)) *Manager {
	return &Manager{
		doc:           doc,
		frames:        frames,
		measurer:      measurer,
		opts:          opts,
		onSelect:      onSelect,
		ContentTarget: "#popover",
	}
}

// Current returns the open popover, or nil.
func (m *Manager) Current() *Popover { return m.current }

// Previous returns the remembered settled position.
func (m *Manager) Previous() (Position, bool) {
	if m.previous == nil {
		return Position{}, false
	}
	return *m.previous, true
}

// OpenOverflow opens the "+N more" popover for a day cell.
func (m *Manager) OpenOverflow(date time.Time, events []model.VisualEvent, anchor Rect, trigger string, viewport Size) *Popover {
	st := State{AnchorDate: date, OverflowEvents: events, AnchorRect: anchor}
	return m.open(KindOverflow, st, trigger, viewport)
}

// OpenDetail opens the detail popover anchored on an event chip. Holidays
// have no detail popover and return nil.
func (m *Manager) OpenDetail(ev model.VisualEvent, anchor Rect, trigger string, viewport Size) *Popover {
	if !ev.Interactive() {
		return nil
	}
	st := State{AnchorDate: ev.Start, Event: &ev, AnchorRect: anchor}
	return m.open(KindDetail, st, trigger, viewport)
}

func (m *Manager) open(kind Kind, st State, trigger string, viewport Size) *Popover {
	m.Close()

	if m.previous != nil {
		prev := *m.previous
		st.PreviousPosition = &prev
	}
	p := &Popover{
		ID:      uuid.NewString(),
		Kind:    kind,
		State:   st,
		Trigger: trigger,
	}
	p.Target = Place(st.AnchorRect, m.contentSize(), viewport, m.opts)
	m.current = p
	appLog.Debug("popover: open", "id", p.ID, "kind", int(kind), "trigger", trigger)

	if m.doc != nil {
		p.removers = append(p.removers,
			m.doc.AddListener(PointerDown, func(e Event) { m.handlePointerDown(p, e) }),
			m.doc.AddListener(KeyDown, func(e Event) { m.handleKey(p, e) }),
		)
	}

	if st.PreviousPosition == nil || m.frames == nil {
		p.Position = p.Target
		m.settle(p)
		return p
	}

	// Show at the old spot first, then move on the next frame.
	p.Position = p.Target
	p.Position.Position = *st.PreviousPosition
	id := p.ID
	p.cancelFrame = m.frames.RequestFrame(func() {
		if !m.IsOpen(id) {
			return
		}
		p.cancelFrame = nil
		p.Position = p.Target
		m.settle(p)
	})
	return p
}

func (m *Manager) settle(p *Popover) {
	p.Settled = true
	pos := p.Target.Position
	m.previous = &pos
}

func (m *Manager) contentSize() Size {
	if m.measurer == nil {
		return Size{}
	}
	s, ok := m.measurer.Measure(m.ContentTarget)
	if !ok {
		appLog.Debug("popover: content not measurable, using default size", "target", m.ContentTarget)
		return Size{}
	}
	return s
}

// Reposition recomputes the open popover against a new viewport, e.g. after
// a resize or a content change.
func (m *Manager) Reposition(viewport Size) {
	p := m.current
	if p == nil {
		return
	}
	p.Target = Place(p.State.AnchorRect, m.contentSize(), viewport, m.opts)
	if p.cancelFrame == nil {
		p.Position = p.Target
		m.settle(p)
	}
}

// IsOpen reports whether the popover with the given id is the open one.
func (m *Manager) IsOpen(id string) bool {
	return id != "" && m.current != nil && m.current.ID == id
}

// CloseID closes the popover only if id is still the open one, so a late
// dismissal never closes a newer popover.
func (m *Manager) CloseID(id string) bool {
	if !m.IsOpen(id) {
		return false
	}
	m.Close()
	return true
}

// Close tears down the open popover, its listeners and any pending frame.
func (m *Manager) Close() {
	p := m.current
	if p == nil {
		return
	}
	m.current = nil
	p.closed = true
	appLog.Debug("popover: close", "id", p.ID)
	if p.cancelFrame != nil {
		p.cancelFrame()
		p.cancelFrame = nil
	}
	for _, remove := range p.removers {
		remove()
	}
	p.removers = nil
}

// Select hands the i-th overflow event to the detail surface and closes the
// overflow popover. Holidays are not selectable.
func (m *Manager) Select(i int) (model.VisualEvent, bool) {
	p := m.current
	if p == nil || p.Kind != KindOverflow || i < 0 || i >= len(p.State.OverflowEvents) {
		return model.VisualEvent{}, false
	}
	ev := p.State.OverflowEvents[i]
	if !ev.Interactive() {
		return model.VisualEvent{}, false
	}
	box := p.Position.Rect()
	m.Close()
	if m.onSelect != nil {
		m.onSelect(ev, box)
	}
	return ev, true
}

func (m *Manager) handlePointerDown(p *Popover, e Event) {
	if p.closed || !m.IsOpen(p.ID) {
		return
	}
	if p.Position.Rect().Contains(e.X, e.Y) {
		return
	}
	// The trigger toggles the popover itself; closing here would reopen it.
	if e.Target != "" && e.Target == p.Trigger {
		return
	}
	m.Close()
}

func (m *Manager) handleKey(p *Popover, e Event) {
	if p.closed || !m.IsOpen(p.ID) {
		return
	}
	if e.Key == "Escape" {
		m.Close()
	}
}
