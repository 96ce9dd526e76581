package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconData []byte
)

// iconPNG renders the menu bar glyph: a selection frame with a chat dot.
// Template icons only use the alpha channel, so the drawing is plain black.
func iconPNG() []byte {
	iconOnce.Do(func() {
		const size = 16
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		ink := color.RGBA{A: 0xff}

		// Selection frame with notched corners.
		for i := 2; i <= 13; i++ {
			if i >= 6 && i <= 9 {
				continue
			}
			img.SetRGBA(i, 2, ink)
			img.SetRGBA(i, 13, ink)
			img.SetRGBA(2, i, ink)
			img.SetRGBA(13, i, ink)
		}

		// Chat dot in the center.
		for y := 6; y <= 9; y++ {
			for x := 6; x <= 9; x++ {
				img.SetRGBA(x, y, ink)
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding a 16x16 RGBA into a buffer cannot fail at runtime.
			panic(err)
		}
		iconData = buf.Bytes()
	})
	return iconData
}
