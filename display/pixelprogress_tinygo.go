//go:build tinygo

package display

import (
	"image/color"

	"tinygo.org/x/drivers"
)

// PixelProgress renders transfer progress as a horizontal bar filling
// the top row of an attached drivers.Displayer, so any driver from
// tinygo.org/x/drivers (SSD1306, ST7789, ...) can be passed here
// without an adapter. It is entirely cosmetic: PixelProgress.Update
// errors are swallowed, exactly like the original firmware's
// updateLoadingScreen, which never let a display glitch abort a flash.
type PixelProgress struct {
	dev   drivers.Displayer
	color color.RGBA
}

// NewPixelProgress wraps dev. color is the fill color for completed
// columns.
func NewPixelProgress(dev drivers.Displayer, c color.RGBA) *PixelProgress {
	return &PixelProgress{dev: dev, color: c}
}

// Update fills in the bar up to fraction (0.0-1.0) of the display's
// width, on its top row.
func (p *PixelProgress) Update(fraction float64) {
	if p.dev == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	w, _ := p.dev.Size()
	lit := int16(fraction * float64(w))
	for x := int16(0); x < lit; x++ {
		p.dev.SetPixel(x, 0, p.color)
	}
	_ = p.dev.Display()
}
