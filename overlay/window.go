package overlay

import (
	"image/color"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"github.com/s0s0/VolcanoChat/hotkey"
	"github.com/s0s0/VolcanoChat/screenshot"
)

var (
	dimColor    = color.NRGBA{A: 0x66}
	borderColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	strokeColor = color.NRGBA{R: 0xff, A: 0xff}
	hintColor   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xd0}
)

const strokeWidth = 3

// Window projects a Machine onto a borderless fullscreen fyne window. All
// machine coordinates are global screen points. The window always covers the
// primary display, whose top-left corner is also the global origin, so
// window-local points and global points coincide; selection on a secondary
// display is not supported until the toolkit exposes per-screen window
// placement. Key presses reach the window through the focused canvas, with a
// separate systemwide observer for Escape so cancellation works even when
// focus is stolen mid-selection.
type Window struct {
	win     fyne.Window
	machine *Machine
	surface *selectSurface
	esc     *hotkey.Listener
	closed  bool
}

// Show presents the selection overlay and reports the outcome through cb.
// OnConfirmed and OnCancelled are terminal; the window tears itself down
// before forwarding either.
func Show(a fyne.App, cb Callbacks) *Window {
	w := &Window{}

	inner := cb
	w.machine = NewMachine(Callbacks{
		OnSelected: func(r screenshot.Rect) {
			w.surface.Refresh()
			if inner.OnSelected != nil {
				inner.OnSelected(r)
			}
		},
		OnDrawingsChanged: func(p []Path) {
			w.surface.Refresh()
			if inner.OnDrawingsChanged != nil {
				inner.OnDrawingsChanged(p)
			}
		},
		OnConfirmed: func(r screenshot.Rect, p []Path) {
			w.Close()
			if inner.OnConfirmed != nil {
				inner.OnConfirmed(r, p)
			}
		},
		OnCancelled: func() {
			w.Close()
			if inner.OnCancelled != nil {
				inner.OnCancelled()
			}
		},
	})

	w.win = a.NewWindow("VolcanoChat Capture")
	w.win.SetPadded(false)
	w.surface = newSelectSurface(w)

	confirm := widget.NewButton("Confirm", func() { w.machine.Confirm() })
	cancel := widget.NewButton("Cancel", func() { w.machine.Escape() })
	w.surface.confirm = confirm
	w.surface.cancel = cancel

	buttons := container.NewWithoutLayout(confirm, cancel)
	w.win.SetContent(container.NewStack(w.surface, buttons))

	w.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyEscape:
			w.machine.Escape()
		case fyne.KeyReturn, fyne.KeyEnter:
			w.machine.Confirm()
		}
	})
	w.win.SetCloseIntercept(func() { w.machine.Escape() })

	// The in-window handler above only sees keys while our canvas holds
	// focus. The user may have clicked through to another app before
	// pressing Escape, so a systemwide observer backs it up.
	esc := hotkey.KeyEscape
	w.esc = hotkey.NewListener(hotkey.Spec{KeyCode: &esc})
	w.esc.OnPressed(func() { fyne.Do(w.machine.Escape) })
	if err := w.esc.Start(); err != nil {
		log.Printf("Overlay: systemwide escape observer unavailable: %v", err)
		w.esc = nil
	}

	w.win.SetFullScreen(true)
	w.win.Show()
	w.win.Canvas().Focus(w.surface)
	return w
}

// Close tears the window down. Idempotent; safe from machine callbacks.
func (w *Window) Close() {
	if w.closed {
		return
	}
	w.closed = true
	if w.esc != nil {
		w.esc.Stop()
		w.esc = nil
	}
	w.win.Close()
}

// toGlobal and toLocal convert between window points and global screen
// points. With the window pinned to the primary display origin the
// translation is the identity.
func (w *Window) toGlobal(p fyne.Position) (int, int) {
	return int(p.X), int(p.Y)
}

func (w *Window) toLocal(r screenshot.Rect) (fyne.Position, fyne.Size) {
	return fyne.NewPos(float32(r.X), float32(r.Y)),
		fyne.NewSize(float32(r.Width), float32(r.Height))
}

// selectSurface is the interactive layer. It forwards pointer events to the
// machine and renders dim mask, selection border, and strokes.
type selectSurface struct {
	widget.BaseWidget
	owner   *Window
	confirm *widget.Button
	cancel  *widget.Button
}

var (
	_ desktop.Mouseable  = (*selectSurface)(nil)
	_ fyne.Draggable     = (*selectSurface)(nil)
	_ desktop.Cursorable = (*selectSurface)(nil)
	_ fyne.Focusable     = (*selectSurface)(nil)
)

func newSelectSurface(owner *Window) *selectSurface {
	s := &selectSurface{owner: owner}
	s.ExtendBaseWidget(s)
	return s
}

func (s *selectSurface) MouseDown(ev *desktop.MouseEvent) {
	x, y := s.owner.toGlobal(ev.Position)
	s.owner.machine.PointerDown(x, y)
	s.Refresh()
}

func (s *selectSurface) MouseUp(ev *desktop.MouseEvent) {
	x, y := s.owner.toGlobal(ev.Position)
	s.owner.machine.PointerUp(x, y)
	s.Refresh()
}

func (s *selectSurface) Dragged(ev *fyne.DragEvent) {
	x, y := s.owner.toGlobal(ev.Position)
	s.owner.machine.PointerMove(x, y)
	s.Refresh()
}

func (s *selectSurface) DragEnd() {}

func (s *selectSurface) Cursor() desktop.Cursor { return desktop.CrosshairCursor }

func (s *selectSurface) FocusGained()            {}
func (s *selectSurface) FocusLost()              {}
func (s *selectSurface) TypedRune(rune)          {}
func (s *selectSurface) TypedKey(*fyne.KeyEvent) {}

func (s *selectSurface) CreateRenderer() fyne.WidgetRenderer {
	hint := canvas.NewText("Drag to select a region. Draw inside it, then Enter to confirm or Esc to cancel.", hintColor)
	hint.TextSize = 16
	return &surfaceRenderer{surface: s, hint: hint}
}

type surfaceRenderer struct {
	surface *selectSurface
	hint    *canvas.Text
	objects []fyne.CanvasObject
}

func (r *surfaceRenderer) Layout(size fyne.Size) {
	r.hint.Move(fyne.NewPos(size.Width/2-r.hint.MinSize().Width/2, 40))
	r.rebuild(size)
}

func (r *surfaceRenderer) MinSize() fyne.Size { return fyne.NewSize(1, 1) }

func (r *surfaceRenderer) Refresh() {
	r.rebuild(r.surface.Size())
	canvas.Refresh(r.surface)
}

func (r *surfaceRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *surfaceRenderer) Destroy() {}

// rebuild recomputes the full object list from machine state. The object
// count is small (four mask panes, one border, the stroke segments) so a
// rebuild per event is cheap.
func (r *surfaceRenderer) rebuild(size fyne.Size) {
	w := r.surface.owner
	m := w.machine

	rect, frozen := m.Selection()
	if !frozen {
		rect, frozen = m.DragRect()
	}

	objs := make([]fyne.CanvasObject, 0, 8)

	if !frozen {
		full := canvas.NewRectangle(dimColor)
		full.Resize(size)
		objs = append(objs, full, r.hint)
		r.hint.Show()
	} else {
		r.hint.Hide()
		pos, sz := w.toLocal(rect)
		objs = append(objs, maskPanes(size, pos, sz)...)

		border := canvas.NewRectangle(color.Transparent)
		border.StrokeColor = borderColor
		border.StrokeWidth = 2
		border.Move(pos)
		border.Resize(sz)
		objs = append(objs, border)
	}

	for _, p := range m.Paths() {
		objs = append(objs, strokeSegments(p)...)
	}

	r.layoutButtons(size, rect, frozen)
	r.objects = objs
}

// layoutButtons parks Confirm and Cancel just under the selection, pulled
// back inside the screen when the rect hugs an edge.
func (r *surfaceRenderer) layoutButtons(size fyne.Size, rect screenshot.Rect, frozen bool) {
	confirm, cancel := r.surface.confirm, r.surface.cancel
	if confirm == nil || cancel == nil {
		return
	}
	_, selected := r.surface.owner.machine.Selection()
	if !frozen || !selected {
		confirm.Hide()
		cancel.Hide()
		return
	}
	pos, sz := r.surface.owner.toLocal(rect)
	csz := confirm.MinSize()
	xsz := cancel.MinSize()

	y := pos.Y + sz.Height + 8
	if y+csz.Height > size.Height {
		y = pos.Y - csz.Height - 8
	}
	x := pos.X + sz.Width - csz.Width
	if x < xsz.Width+8 {
		x = xsz.Width + 8
	}

	confirm.Resize(csz)
	confirm.Move(fyne.NewPos(x, y))
	confirm.Show()
	cancel.Resize(xsz)
	cancel.Move(fyne.NewPos(x-xsz.Width-8, y))
	cancel.Show()
}

// maskPanes dims everything outside the selection with four rectangles.
func maskPanes(size fyne.Size, pos fyne.Position, sz fyne.Size) []fyne.CanvasObject {
	top := canvas.NewRectangle(dimColor)
	top.Resize(fyne.NewSize(size.Width, pos.Y))

	bottom := canvas.NewRectangle(dimColor)
	bottom.Move(fyne.NewPos(0, pos.Y+sz.Height))
	bottom.Resize(fyne.NewSize(size.Width, size.Height-pos.Y-sz.Height))

	left := canvas.NewRectangle(dimColor)
	left.Move(fyne.NewPos(0, pos.Y))
	left.Resize(fyne.NewSize(pos.X, sz.Height))

	right := canvas.NewRectangle(dimColor)
	right.Move(fyne.NewPos(pos.X+sz.Width, pos.Y))
	right.Resize(fyne.NewSize(size.Width-pos.X-sz.Width, sz.Height))

	return []fyne.CanvasObject{top, bottom, left, right}
}

func strokeSegments(p Path) []fyne.CanvasObject {
	if len(p.Points) == 0 {
		return nil
	}
	segs := make([]fyne.CanvasObject, 0, len(p.Points))
	prev := p.Points[0]
	for _, pt := range p.Points[1:] {
		l := canvas.NewLine(strokeColor)
		l.StrokeWidth = strokeWidth
		l.Position1 = fyne.NewPos(float32(prev.X), float32(prev.Y))
		l.Position2 = fyne.NewPos(float32(pt.X), float32(pt.Y))
		segs = append(segs, l)
		prev = pt
	}
	if len(segs) == 0 {
		// A single click leaves a dot.
		dot := canvas.NewCircle(strokeColor)
		dot.Move(fyne.NewPos(float32(prev.X)-strokeWidth/2, float32(prev.Y)-strokeWidth/2))
		dot.Resize(fyne.NewSize(strokeWidth, strokeWidth))
		segs = append(segs, dot)
	}
	return segs
}
