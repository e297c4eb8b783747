package decoder

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
)

// JPEGDecoder decodes JPEG bytes (one MJPEG frame or a preview image).
type JPEGDecoder struct{}

func NewJPEGDecoder() *JPEGDecoder {
	return &JPEGDecoder{}
}

// Decode ignores width and height; the JPEG header carries its own size.
func (d *JPEGDecoder) Decode(data []byte, _, _ int) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeErr("jpeg: %v", err)
	}
	return img, nil
}

// DecodeRGBA decodes JPEG bytes and converts to RGBA if needed.
func (d *JPEGDecoder) DecodeRGBA(data []byte) (*image.RGBA, error) {
	img, err := d.Decode(data, 0, 0)
	if err != nil {
		return nil, err
	}
	return ToRGBA(img), nil
}

// ToRGBA returns img itself when it already is RGBA, otherwise a converted copy.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}
