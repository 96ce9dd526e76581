package overlay

import (
	"testing"

	"github.com/s0s0/VolcanoChat/screenshot"
)

type recorderCB struct {
	selected  []screenshot.Rect
	drawings  [][]Path
	confirmed int
	rect      screenshot.Rect
	paths     []Path
	cancelled int
}

func (r *recorderCB) callbacks() Callbacks {
	return Callbacks{
		OnSelected:        func(rect screenshot.Rect) { r.selected = append(r.selected, rect) },
		OnDrawingsChanged: func(p []Path) { r.drawings = append(r.drawings, p) },
		OnConfirmed: func(rect screenshot.Rect, p []Path) {
			r.confirmed++
			r.rect = rect
			r.paths = p
		},
		OnCancelled: func() { r.cancelled++ },
	}
}

func TestDragSelectConfirm(t *testing.T) {
	cb := &recorderCB{}
	m := NewMachine(cb.callbacks())

	m.PointerDown(100, 100)
	m.PointerMove(200, 180)
	m.PointerUp(300, 250)

	if m.State() != StateSelected {
		t.Fatalf("state = %v, want StateSelected", m.State())
	}
	want := screenshot.Rect{X: 100, Y: 100, Width: 200, Height: 150}
	if len(cb.selected) != 1 || cb.selected[0] != want {
		t.Fatalf("selected = %+v, want [%+v]", cb.selected, want)
	}

	m.Confirm()
	if m.State() != StateConfirmed || cb.confirmed != 1 {
		t.Fatalf("confirm did not fire: state=%v confirmed=%d", m.State(), cb.confirmed)
	}
	if cb.rect != want {
		t.Errorf("confirmed rect = %+v, want %+v", cb.rect, want)
	}
}

func TestReverseDragNormalizes(t *testing.T) {
	cb := &recorderCB{}
	m := NewMachine(cb.callbacks())

	m.PointerDown(300, 250)
	m.PointerUp(100, 100)

	want := screenshot.Rect{X: 100, Y: 100, Width: 200, Height: 150}
	if len(cb.selected) != 1 || cb.selected[0] != want {
		t.Fatalf("selected = %+v, want [%+v]", cb.selected, want)
	}
}

func TestTinyDragDiscardedSilently(t *testing.T) {
	cb := &recorderCB{}
	m := NewMachine(cb.callbacks())

	m.PointerDown(100, 100)
	m.PointerUp(105, 102)

	if m.State() != StateIdle {
		t.Fatalf("state = %v, want StateIdle", m.State())
	}
	if len(cb.selected) != 0 || cb.cancelled != 0 {
		t.Fatal("tiny drag must neither select nor cancel")
	}
	// Either dimension under the threshold discards.
	m.PointerDown(100, 100)
	m.PointerUp(200, 105)
	if m.State() != StateIdle {
		t.Fatalf("thin drag kept state %v", m.State())
	}
}

func TestAnnotationLifecycle(t *testing.T) {
	cb := &recorderCB{}
	m := NewMachine(cb.callbacks())

	m.PointerDown(0, 0)
	m.PointerUp(100, 100)

	// Pointer-down outside the frozen rect is ignored.
	m.PointerDown(500, 500)
	if m.State() != StateSelected {
		t.Fatalf("outside click changed state to %v", m.State())
	}

	// First stroke.
	m.PointerDown(10, 10)
	if m.State() != StateAnnotating {
		t.Fatalf("state = %v, want StateAnnotating", m.State())
	}
	m.PointerMove(20, 20)
	m.PointerMove(30, 25)
	m.PointerUp(40, 30)

	if m.State() != StateSelected {
		t.Fatalf("state after seal = %v, want StateSelected", m.State())
	}
	if len(cb.drawings) != 1 || len(cb.drawings[0]) != 1 {
		t.Fatalf("drawings events = %+v", cb.drawings)
	}
	first := cb.drawings[0][0]
	if first.ID == "" {
		t.Error("sealed path has no ID")
	}
	wantPts := []screenshot.Point{{10, 10}, {20, 20}, {30, 25}, {40, 30}}
	if len(first.Points) != len(wantPts) {
		t.Fatalf("points = %+v, want %+v", first.Points, wantPts)
	}
	for i, p := range wantPts {
		if first.Points[i] != p {
			t.Errorf("point %d = %+v, want %+v", i, first.Points[i], p)
		}
	}

	// Second stroke, then confirm carries both in order.
	m.PointerDown(50, 50)
	m.PointerUp(60, 60)
	m.Confirm()
	if cb.confirmed != 1 || len(cb.paths) != 2 {
		t.Fatalf("confirmed=%d paths=%d", cb.confirmed, len(cb.paths))
	}
	if cb.paths[0].ID == cb.paths[1].ID {
		t.Error("paths must be uniquely identified")
	}
}

func TestConfirmSealsLiveStroke(t *testing.T) {
	cb := &recorderCB{}
	m := NewMachine(cb.callbacks())

	m.PointerDown(0, 0)
	m.PointerUp(100, 100)
	m.PointerDown(10, 10)
	m.PointerMove(20, 20)
	m.Confirm()

	if cb.confirmed != 1 || len(cb.paths) != 1 {
		t.Fatalf("confirmed=%d paths=%d", cb.confirmed, len(cb.paths))
	}
}

func TestEscapeAtEveryStage(t *testing.T) {
	stages := []struct {
		name  string
		setup func(m *Machine)
	}{
		{"idle", func(m *Machine) {}},
		{"mid drag", func(m *Machine) { m.PointerDown(0, 0); m.PointerMove(50, 50) }},
		{"selected", func(m *Machine) { m.PointerDown(0, 0); m.PointerUp(100, 100) }},
		{"annotating", func(m *Machine) {
			m.PointerDown(0, 0)
			m.PointerUp(100, 100)
			m.PointerDown(10, 10)
		}},
	}
	for _, tt := range stages {
		t.Run(tt.name, func(t *testing.T) {
			cb := &recorderCB{}
			m := NewMachine(cb.callbacks())
			tt.setup(m)
			m.Escape()
			if m.State() != StateCancelled || cb.cancelled != 1 {
				t.Fatalf("state=%v cancelled=%d", m.State(), cb.cancelled)
			}
			// A second escape is a no-op.
			m.Escape()
			if cb.cancelled != 1 {
				t.Fatal("escape fired twice")
			}
		})
	}
}

func TestConfirmUnavailableOutsideSelection(t *testing.T) {
	cb := &recorderCB{}
	m := NewMachine(cb.callbacks())

	m.Confirm()
	if cb.confirmed != 0 {
		t.Fatal("confirm fired from idle")
	}
	m.PointerDown(0, 0)
	m.Confirm()
	if cb.confirmed != 0 {
		t.Fatal("confirm fired mid-drag")
	}
}
