package screenshot

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/kbinani/screenshot"
)

// DefaultScale is assumed when the backing pixel density of a display cannot
// be determined from the capture result. High-density panels report 2.0.
const DefaultScale = 2.0

var (
	ErrNoDisplay     = errors.New("no display contains the requested rect")
	ErrInvalidRect   = errors.New("rect has non-positive dimensions")
	ErrCaptureFailed = errors.New("screen capture failed")
)

// Rect is a screen region in global (virtual screen) coordinates, in logical
// points. Width and Height are always non-negative.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

type Point struct {
	X int
	Y int
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

func (r Rect) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Normalized returns the rect with the origin moved so that Width/Height are
// non-negative regardless of drag direction.
func Normalized(x0, y0, x1, y1 int) Rect {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Captured is a raster frame plus the logical region it came from. Scale is
// the observed device-pixels-per-point ratio of the owning display.
type Captured struct {
	Image *image.RGBA
	Rect  Rect
	Scale float64
}

// IsValidRect reports whether the rect has positive dimensions and intersects
// at least one connected display.
func IsValidRect(r Rect) bool {
	if r.Width <= 0 || r.Height <= 0 {
		return false
	}
	n := screenshot.NumActiveDisplays()
	for i := 0; i < n; i++ {
		if r.Bounds().Overlaps(screenshot.GetDisplayBounds(i)) {
			return true
		}
	}
	return false
}

// DisplayForRect resolves the display owning the rect: the one whose bounds
// contain the rect's center. Rects straddling a display boundary fall back to
// the primary display; that is an approximation, not a multi-monitor stitch.
func DisplayForRect(r Rect) (int, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return 0, ErrNoDisplay
	}
	c := r.Center()
	for i := 0; i < n; i++ {
		if image.Pt(c.X, c.Y).In(screenshot.GetDisplayBounds(i)) {
			return i, nil
		}
	}
	log.Printf("screenshot: rect %+v center on no display, falling back to primary", r)
	return 0, nil
}

// Capture grabs the pixels of a region in global coordinates. The cursor is
// not included in the frame. Any failure yields no image; callers must treat
// that as a hard stop, not a retry point.
//
// Callers are responsible for keeping their own windows out of the frame by
// hiding them before the call.
func Capture(r Rect) (*Captured, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d height=%d", ErrInvalidRect, r.Width, r.Height)
	}
	idx, err := DisplayForRect(r)
	if err != nil {
		return nil, err
	}
	display := screenshot.GetDisplayBounds(idx)
	if !r.Bounds().Overlaps(display) {
		return nil, fmt.Errorf("%w: rect %+v outside display %d %v", ErrNoDisplay, r, idx, display)
	}

	// The rect is expressed relative to the display by subtracting its
	// origin; the capture API takes global coordinates, so we translate
	// back after clamping to the display edge.
	local := image.Rect(r.X-display.Min.X, r.Y-display.Min.Y, r.X+r.Width-display.Min.X, r.Y+r.Height-display.Min.Y)
	local = local.Intersect(image.Rect(0, 0, display.Dx(), display.Dy()))
	if local.Empty() {
		return nil, fmt.Errorf("%w: rect %+v clamps to nothing on display %d", ErrNoDisplay, r, idx)
	}
	global := local.Add(display.Min)

	img, err := screenshot.CaptureRect(global)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrCaptureFailed
	}

	out := Rect{X: global.Min.X, Y: global.Min.Y, Width: global.Dx(), Height: global.Dy()}
	return &Captured{Image: img, Rect: out, Scale: observedScale(img, out)}, nil
}

// observedScale derives device pixels per logical point from the capture
// result. When the buffer does not divide evenly into the logical size the
// conservative high-density default is assumed.
func observedScale(img *image.RGBA, r Rect) float64 {
	if r.Width <= 0 || img.Bounds().Dx() <= 0 {
		return DefaultScale
	}
	if img.Bounds().Dx()%r.Width != 0 {
		return DefaultScale
	}
	return float64(img.Bounds().Dx() / r.Width)
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, ErrNoDisplay
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}
