package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/junsooki/Zoetrope/internal/decoder"
)

// mjpegReader splits a concatenated MJPEG byte stream into single JPEG
// images on the SOI (FFD8) and EOI (FFD9) markers.
type mjpegReader struct {
	r   *bufio.Reader
	buf []byte
	max int
}

func newMJPEGReader(r io.Reader, maxFrame int) *mjpegReader {
	return &mjpegReader{r: bufio.NewReaderSize(r, 256*1024), max: maxFrame}
}

// Next returns the next JPEG image. The slice is reused by the following call.
// An oversized image is reported as a decode error and skipped.
func (m *mjpegReader) Next() ([]byte, error) {
	if err := m.skipToSOI(); err != nil {
		return nil, err
	}
	m.buf = append(m.buf[:0], 0xFF, 0xD8)

	for {
		chunk, err := m.r.ReadSlice(0xFF)
		m.buf = append(m.buf, chunk...)
		if len(m.buf) > m.max {
			return nil, fmt.Errorf("%w: mjpeg frame larger than %d bytes", decoder.ErrDecode, m.max)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return nil, err
		}

		b, err := m.r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0xD9:
			m.buf = append(m.buf, b)
			return m.buf, nil
		case 0xFF:
			// fill byte run; let the next ReadSlice pick it up as a marker prefix
			m.r.UnreadByte()
		default:
			m.buf = append(m.buf, b)
		}
	}
}

func (m *mjpegReader) skipToSOI() error {
	for {
		_, err := m.r.ReadSlice(0xFF)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return err
		}
		b, err := m.r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case 0xD8:
			return nil
		case 0xFF:
			m.r.UnreadByte()
		}
	}
}
