package decoder

import "image"

// RGBADecoder wraps an already-RGBA buffer without copying.
type RGBADecoder struct{}

func (RGBADecoder) Decode(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, decodeErr("rgba: bad size %dx%d", width, height)
	}
	if len(data) < width*height*4 {
		return nil, decodeErr("rgba: short frame %d bytes, want %d", len(data), width*height*4)
	}
	return &image.RGBA{
		Pix:    data[:width*height*4],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}
