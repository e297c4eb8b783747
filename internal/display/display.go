package display

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Display is a window driven by the ebiten game loop.
type Display interface {
	Run() error
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}

// spinTransform fits a frame into the view and turns it by angle around the
// view's centre.
func spinTransform(viewW, viewH, frameW, frameH, angle float64) ebiten.GeoM {
	scale, _, _ := aspectFitTransform(viewW, viewH, frameW, frameH)
	var m ebiten.GeoM
	m.Translate(-frameW/2, -frameH/2)
	m.Rotate(angle)
	m.Scale(scale, scale)
	m.Translate(viewW/2, viewH/2)
	return m
}
