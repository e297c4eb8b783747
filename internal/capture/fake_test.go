package capture

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junsooki/Zoetrope/internal/decoder"
)

// fakeDevice produces RGBA frames of uniform colour every interval. next may
// override individual reads (return ok=false to fall through to a frame).
type fakeDevice struct {
	w, h     int
	interval time.Duration
	next     func(i int) (RawFrame, error, bool)

	reads     atomic.Int64
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int64
}

func newFakeDevice(w, h int, interval time.Duration) *fakeDevice {
	return &fakeDevice{w: w, h: h, interval: interval, closed: make(chan struct{})}
}

func (d *fakeDevice) ReadFrame() (RawFrame, error) {
	i := int(d.reads.Add(1)) - 1
	if d.interval > 0 {
		select {
		case <-d.closed:
			return RawFrame{}, io.ErrClosedPipe
		case <-time.After(d.interval):
		}
	} else {
		select {
		case <-d.closed:
			return RawFrame{}, io.ErrClosedPipe
		default:
		}
	}
	if d.next != nil {
		if f, err, ok := d.next(i); ok {
			return f, err
		}
	}
	data := make([]byte, d.w*d.h*4)
	for j := range data {
		data[j] = byte(i)
	}
	return RawFrame{Data: data, Width: d.w, Height: d.h, Format: decoder.FormatRGBA, Timestamp: time.Now()}, nil
}

func (d *fakeDevice) Close() error {
	d.closes.Add(1)
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

func (d *fakeDevice) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}
