// Package hotkey watches the systemwide input event stream for configured
// key chords. The underlying hook is passive: events are observed and always
// propagate to whatever application has focus.
package hotkey

import (
	"log"
	"sync"

	gohook "github.com/robotn/gohook"

	"github.com/s0s0/VolcanoChat/permission"
)

// Mask is a bitset of modifier keys. Left and right variants of a modifier
// map to the same bit.
type Mask uint8

const (
	ModShift Mask = 1 << iota
	ModCtrl
	ModOption
	ModCmd
	ModFn
)

// Spec describes one chord. A nil KeyCode matches on modifiers alone, e.g. a
// bare Option press.
type Spec struct {
	KeyCode   *uint16
	Modifiers Mask
}

// EventKind distinguishes the two key event directions delivered by the tap.
// Modifier state changes arrive as key-down/key-up of the modifier's own code.
type EventKind int

const (
	KeyDown EventKind = iota
	KeyUp
)

// Event is one observed keyboard event.
type Event struct {
	Kind EventKind
	Code uint16
}

// tracker is the per-listener match state. It owns the transient pressed flag
// and the live modifier mask; nothing outside the listener touches it.
type tracker struct {
	spec    Spec
	held    map[uint16]bool
	mask    Mask
	pressed bool
}

func (t *tracker) handle(ev Event) (fireDown, fireUp bool) {
	if _, isMod := modifierBit(ev.Code); isMod {
		if t.held == nil {
			t.held = make(map[uint16]bool)
		}
		if ev.Kind == KeyDown {
			t.held[ev.Code] = true
		} else {
			delete(t.held, ev.Code)
		}
		t.mask = maskOf(t.held)

		if t.spec.KeyCode == nil {
			if !t.pressed && t.mask != 0 && t.mask == t.spec.Modifiers {
				t.pressed = true
				return true, false
			}
			if t.pressed && t.mask != t.spec.Modifiers {
				t.pressed = false
				return false, true
			}
		}
		return false, false
	}

	if t.spec.KeyCode == nil {
		return false, false
	}
	switch ev.Kind {
	case KeyDown:
		if !t.pressed && ev.Code == *t.spec.KeyCode && t.mask == t.spec.Modifiers {
			t.pressed = true
			return true, false
		}
	case KeyUp:
		if t.pressed && ev.Code == *t.spec.KeyCode {
			t.pressed = false
			return false, true
		}
	}
	return false, false
}

func (t *tracker) reset() {
	t.held = nil
	t.mask = 0
	t.pressed = false
}

func maskOf(held map[uint16]bool) Mask {
	var m Mask
	for code := range held {
		if bit, ok := modifierBit(code); ok {
			m |= bit
		}
	}
	return m
}

// Listener matches one chord against the global input stream. Multiple
// listeners with different specs run concurrently over the same tap; each
// keeps its own press state.
type Listener struct {
	mu         sync.Mutex
	trk        tracker
	gate       permission.Gate
	dispatch   func(func())
	onPressed  func()
	onReleased func()
	started    bool
}

// NewListener builds a stopped listener for the given chord. Callbacks run
// inline unless a dispatcher is set; the application installs one that moves
// them off the tap goroutine onto a single ordered queue.
func NewListener(spec Spec) *Listener {
	return &Listener{
		trk:      tracker{spec: spec},
		gate:     permission.System{},
		dispatch: func(f func()) { f() },
	}
}

// SetGate overrides the permission gate, mainly for tests.
func (l *Listener) SetGate(g permission.Gate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = g
}

// SetDispatch installs the scheduling context callbacks are delivered on.
func (l *Listener) SetDispatch(d func(func())) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatch = d
}

func (l *Listener) OnPressed(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onPressed = fn
}

func (l *Listener) OnReleased(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReleased = fn
}

// Start requests input-monitoring authorization (idempotent), verifies it,
// and joins the shared tap. On a failed check no listener is installed and
// the permission error is returned to the caller.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	l.gate.Request(permission.InputMonitoring)
	if !l.gate.Check(permission.InputMonitoring) {
		return &permission.Error{Kind: permission.InputMonitoring}
	}
	tapSubscribe(l)
	l.started = true
	return nil
}

// Stop leaves the tap and clears match state. Safe to call when not started.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}
	tapUnsubscribe(l)
	l.trk.reset()
	l.started = false
}

// Reconfigure tears the listener down and rebuilds it with a new chord. A
// live tap is never mutated in place.
func (l *Listener) Reconfigure(spec Spec) error {
	l.Stop()
	l.mu.Lock()
	l.trk = tracker{spec: spec}
	l.mu.Unlock()
	return l.Start()
}

// deliver is called from the tap goroutine. Observable effects are marshalled
// through the dispatcher before touching anything downstream.
func (l *Listener) deliver(ev Event) {
	l.mu.Lock()
	fireDown, fireUp := l.trk.handle(ev)
	onPressed, onReleased, dispatch := l.onPressed, l.onReleased, l.dispatch
	l.mu.Unlock()

	if fireDown && onPressed != nil {
		dispatch(onPressed)
	}
	if fireUp && onReleased != nil {
		dispatch(onReleased)
	}
}

// Shared passive tap over the single OS input stream. Started when the first
// listener subscribes, stopped when the last one leaves.
var (
	tapMu   sync.Mutex
	tapSubs map[*Listener]struct{}
	tapStop chan struct{}
)

func tapSubscribe(l *Listener) {
	tapMu.Lock()
	defer tapMu.Unlock()
	if tapSubs == nil {
		tapSubs = make(map[*Listener]struct{})
	}
	tapSubs[l] = struct{}{}
	if len(tapSubs) == 1 {
		startTap()
	}
}

func tapUnsubscribe(l *Listener) {
	tapMu.Lock()
	defer tapMu.Unlock()
	delete(tapSubs, l)
	if len(tapSubs) == 0 && tapStop != nil {
		close(tapStop)
		tapStop = nil
		gohook.End()
	}
}

func startTap() {
	stop := make(chan struct{})
	tapStop = stop
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("hotkey: tap goroutine panic: %v", r)
			}
		}()
		evCh := gohook.Start()
		if evCh == nil {
			log.Printf("hotkey: failed to open input event tap")
			return
		}
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-evCh:
				if !ok {
					log.Printf("hotkey: event tap closed")
					return
				}
				var kind EventKind
				switch ev.Kind {
				case gohook.KeyDown:
					kind = KeyDown
				case gohook.KeyUp:
					kind = KeyUp
				default:
					continue
				}
				fanOut(Event{Kind: kind, Code: ev.Rawcode})
			}
		}
	}()
}

func fanOut(ev Event) {
	tapMu.Lock()
	targets := make([]*Listener, 0, len(tapSubs))
	for l := range tapSubs {
		targets = append(targets, l)
	}
	tapMu.Unlock()
	for _, l := range targets {
		l.deliver(ev)
	}
}
