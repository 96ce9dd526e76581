// Package overlay implements interactive region selection with a freehand
// annotation phase. The Machine holds all selection logic and is driven by
// pointer and key events; the fyne window in window.go is only a projection
// of its state.
package overlay

import (
	"github.com/google/uuid"

	"github.com/s0s0/VolcanoChat/screenshot"
)

// MinSpan is the smallest selectable edge in points. Drags below it are
// treated as misclicks and discarded silently.
const MinSpan = 10

type State int

const (
	StateIdle State = iota
	StateDragging
	StateSelected
	StateAnnotating
	StateConfirmed
	StateCancelled
)

// Path is one freehand stroke in global screen coordinates. Points are
// appended while the stroke is live and the path is immutable once sealed
// into the session's collection.
type Path struct {
	ID     string
	Points []screenshot.Point
}

// Callbacks observe the selection lifecycle. They fire synchronously from
// the event that caused the transition, in user order.
type Callbacks struct {
	OnSelected        func(screenshot.Rect)
	OnDrawingsChanged func([]Path)
	OnConfirmed       func(screenshot.Rect, []Path)
	OnCancelled       func()
}

// Machine is the selection state machine. All coordinates are global screen
// points; the presentation layer translates from window-local space.
type Machine struct {
	state State
	cb    Callbacks

	startX, startY int
	curX, curY     int

	rect  screenshot.Rect
	paths []Path
	live  *Path
}

func NewMachine(cb Callbacks) *Machine {
	return &Machine{state: StateIdle, cb: cb}
}

func (m *Machine) State() State { return m.state }

// Selection returns the frozen rect once one exists.
func (m *Machine) Selection() (screenshot.Rect, bool) {
	if m.state == StateSelected || m.state == StateAnnotating || m.state == StateConfirmed {
		return m.rect, true
	}
	return screenshot.Rect{}, false
}

// Paths returns the sealed strokes plus the live one, for rendering.
func (m *Machine) Paths() []Path {
	if m.live == nil {
		return m.paths
	}
	return append(append([]Path(nil), m.paths...), *m.live)
}

// DragRect is the live normalized bounding box while dragging.
func (m *Machine) DragRect() (screenshot.Rect, bool) {
	if m.state != StateDragging {
		return screenshot.Rect{}, false
	}
	return screenshot.Normalized(m.startX, m.startY, m.curX, m.curY), true
}

func (m *Machine) PointerDown(x, y int) {
	switch m.state {
	case StateIdle:
		m.state = StateDragging
		m.startX, m.startY = x, y
		m.curX, m.curY = x, y
	case StateSelected:
		if !inRect(m.rect, x, y) {
			return
		}
		m.state = StateAnnotating
		m.live = &Path{ID: uuid.NewString(), Points: []screenshot.Point{{X: x, Y: y}}}
	}
}

func (m *Machine) PointerMove(x, y int) {
	switch m.state {
	case StateDragging:
		m.curX, m.curY = x, y
	case StateAnnotating:
		if m.live != nil {
			m.live.Points = append(m.live.Points, screenshot.Point{X: x, Y: y})
		}
	}
}

func (m *Machine) PointerUp(x, y int) {
	switch m.state {
	case StateDragging:
		m.curX, m.curY = x, y
		r := screenshot.Normalized(m.startX, m.startY, m.curX, m.curY)
		if r.Width < MinSpan || r.Height < MinSpan {
			m.state = StateIdle
			return
		}
		m.rect = r
		m.state = StateSelected
		if m.cb.OnSelected != nil {
			m.cb.OnSelected(r)
		}
	case StateAnnotating:
		m.sealLive(x, y)
		m.state = StateSelected
		if m.cb.OnDrawingsChanged != nil {
			m.cb.OnDrawingsChanged(append([]Path(nil), m.paths...))
		}
	}
}

// Escape cancels from any live state, mid-drag included.
func (m *Machine) Escape() {
	switch m.state {
	case StateConfirmed, StateCancelled:
		return
	}
	m.state = StateCancelled
	m.live = nil
	if m.cb.OnCancelled != nil {
		m.cb.OnCancelled()
	}
}

// Confirm finalizes the selection. Only meaningful once a rect is frozen; a
// stroke still in progress is sealed first.
func (m *Machine) Confirm() {
	switch m.state {
	case StateAnnotating:
		if m.live != nil && len(m.live.Points) > 0 {
			last := m.live.Points[len(m.live.Points)-1]
			m.sealLive(last.X, last.Y)
		}
	case StateSelected:
	default:
		return
	}
	if m.rect.Width <= 0 || m.rect.Height <= 0 {
		return
	}
	m.state = StateConfirmed
	if m.cb.OnConfirmed != nil {
		m.cb.OnConfirmed(m.rect, append([]Path(nil), m.paths...))
	}
}

func (m *Machine) sealLive(x, y int) {
	if m.live == nil {
		return
	}
	last := m.live.Points[len(m.live.Points)-1]
	if last.X != x || last.Y != y {
		m.live.Points = append(m.live.Points, screenshot.Point{X: x, Y: y})
	}
	m.paths = append(m.paths, *m.live)
	m.live = nil
}

func inRect(r screenshot.Rect, x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}
