// Package decoder turns device-native pixel buffers into RGBA images.
package decoder

import (
	"errors"
	"fmt"
	"image"
)

// ErrDecode marks a single undecodable frame. Callers drop the frame and go on.
var ErrDecode = errors.New("frame decode failed")

// Decoder decodes one raw frame of a fixed pixel layout into an image.
// Width and height are the device's negotiated frame size; formats that carry
// their own size (MJPEG) ignore them.
type Decoder interface {
	Decode(data []byte, width, height int) (image.Image, error)
}

// Format names a device pixel layout.
type Format string

const (
	FormatMJPEG Format = "mjpeg"
	FormatYUYV  Format = "yuyv422"
	FormatRGBA  Format = "rgba"
)

// ForFormat returns the decoder for f, or an error if f is unknown.
func ForFormat(f Format) (Decoder, error) {
	switch f {
	case FormatMJPEG:
		return NewJPEGDecoder(), nil
	case FormatYUYV:
		return YUYVDecoder{}, nil
	case FormatRGBA:
		return RGBADecoder{}, nil
	}
	return nil, fmt.Errorf("unknown pixel format %q", f)
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
