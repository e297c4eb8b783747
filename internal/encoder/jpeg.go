package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

const minQuality = 20

// JPEGEncoder encodes preview frames as JPEG, downscaling anything larger
// than maxSide and lowering quality until the result fits maxBytes.
type JPEGEncoder struct {
	mu       sync.Mutex
	quality  int
	maxSide  int
	maxBytes int

	scaled *image.RGBA
	buf    bytes.Buffer
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
// maxSide and maxBytes of 0 mean no limit.
func NewJPEGEncoder(quality, maxSide, maxBytes int) *JPEGEncoder {
	e := &JPEGEncoder{maxSide: maxSide, maxBytes: maxBytes}
	e.SetQuality(quality)
	return e
}

func (e *JPEGEncoder) SetQuality(quality int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quality = max(1, min(100, quality))
}

// Encode returns a fresh byte slice the caller may keep.
func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src := e.downscale(img)
	for q := e.quality; ; q -= 15 {
		q = max(q, minQuality)
		e.buf.Reset()
		if err := jpeg.Encode(&e.buf, src, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
		if e.maxBytes <= 0 || e.buf.Len() <= e.maxBytes {
			return bytes.Clone(e.buf.Bytes()), nil
		}
		if q == minQuality {
			return nil, fmt.Errorf("jpeg %d bytes at quality %d exceeds %d", e.buf.Len(), q, e.maxBytes)
		}
	}
}

func (e *JPEGEncoder) downscale(img *image.RGBA) image.Image {
	b := img.Bounds()
	side := max(b.Dx(), b.Dy())
	if e.maxSide <= 0 || side <= e.maxSide {
		return img
	}
	w := b.Dx() * e.maxSide / side
	h := b.Dy() * e.maxSide / side
	if e.scaled == nil || e.scaled.Bounds().Dx() != w || e.scaled.Bounds().Dy() != h {
		e.scaled = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.ApproxBiLinear.Scale(e.scaled, e.scaled.Bounds(), img, b, draw.Src, nil)
	return e.scaled
}
