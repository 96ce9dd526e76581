// Package annotate burns freehand strokes into a captured image. Strokes
// arrive in global screen points; the compositor maps them into the capture's
// pixel space and draws them so the saved image matches what the user saw on
// the overlay.
package annotate

import (
	"image"
	"image/color"

	"github.com/s0s0/VolcanoChat/overlay"
	"github.com/s0s0/VolcanoChat/screenshot"
)

// StrokeRadius is the pen half-width in screen points. The effective pixel
// radius grows with the capture scale so strokes keep their apparent width
// on Retina captures.
const StrokeRadius = 1.5

var strokeColor = color.RGBA{R: 0xff, A: 0xff}

// Render returns shot's image with paths drawn over it. With no strokes the
// original image is returned untouched; otherwise a copy is drawn on so the
// caller's capture stays pristine.
func Render(shot *screenshot.Captured, paths []overlay.Path) *image.RGBA {
	drawable := false
	for _, p := range paths {
		if len(p.Points) > 0 {
			drawable = true
			break
		}
	}
	if !drawable {
		return shot.Image
	}

	dst := cloneRGBA(shot.Image)
	radius := int(StrokeRadius*shot.Scale + 0.5)
	if radius < 1 {
		radius = 1
	}

	for _, p := range paths {
		pts := project(p.Points, shot)
		if len(pts) == 1 {
			stamp(dst, pts[0].X, pts[0].Y, radius)
			continue
		}
		for i := 1; i < len(pts); i++ {
			line(dst, pts[i-1], pts[i], radius)
		}
	}
	return dst
}

// project maps global screen points into the capture's pixel grid: translate
// by the selection origin, then scale by the capture's pixel density.
func project(pts []screenshot.Point, shot *screenshot.Captured) []image.Point {
	out := make([]image.Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, image.Point{
			X: int(float64(p.X-shot.Rect.X)*shot.Scale + 0.5),
			Y: int(float64(p.Y-shot.Rect.Y)*shot.Scale + 0.5),
		})
	}
	return out
}

// line stamps a disc at every point of the Bresenham walk from a to b, which
// gives round joins and caps for free.
func line(dst *image.RGBA, a, b image.Point, radius int) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy

	x, y := a.X, a.Y
	for {
		stamp(dst, x, y, radius)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func stamp(dst *image.RGBA, cx, cy, radius int) {
	b := dst.Bounds()
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			x, y := cx+dx, cy+dy
			if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
				continue
			}
			dst.SetRGBA(x, y, strokeColor)
		}
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
