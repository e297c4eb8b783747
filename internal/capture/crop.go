package capture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/junsooki/Zoetrope/internal/decoder"
)

// Cropper cuts a fixed square out of each raw frame and scales it to the
// output size. The square is chosen once, so the output never changes shape
// when the input aspect ratio does.
type Cropper struct {
	rect   image.Rectangle
	size   int
	scaler draw.Interpolator
}

// NewCropper places a min(width,height) square at (cropX, cropY) inside a
// width×height frame. A negative cropX centres it horizontally.
func NewCropper(width, height, cropX, cropY, size int) (*Cropper, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bad frame size %dx%d", width, height)
	}
	if size <= 0 {
		return nil, fmt.Errorf("bad output size %d", size)
	}
	side := min(width, height)
	if cropX < 0 {
		cropX = (width - side) / 2
	}
	if cropY < 0 {
		cropY = (height - side) / 2
	}
	rect := image.Rect(cropX, cropY, cropX+side, cropY+side)
	if !rect.In(image.Rect(0, 0, width, height)) {
		return nil, fmt.Errorf("crop %v outside %dx%d frame", rect, width, height)
	}
	return &Cropper{rect: rect, size: size, scaler: draw.ApproxBiLinear}, nil
}

// Rect is the crop square in raw-frame coordinates.
func (c *Cropper) Rect() image.Rectangle { return c.rect }

// Size is the side of the output square.
func (c *Cropper) Size() int { return c.size }

// Apply scales the crop square of src into dst, which must be Size×Size.
// A src that does not hold the whole square is a decode error.
func (c *Cropper) Apply(dst *image.RGBA, src image.Image) error {
	r := c.rect.Add(src.Bounds().Min).Intersect(src.Bounds())
	if r.Size() != c.rect.Size() {
		return fmt.Errorf("%w: crop %v not inside source %v", decoder.ErrDecode, c.rect, src.Bounds())
	}
	c.scaler.Scale(dst, dst.Bounds(), src, r, draw.Src, nil)
	return nil
}
