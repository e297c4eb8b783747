// Package framebuf is the single-slot, overwrite-latest mailbox between the
// capture goroutine and the renderer.
package framebuf

import (
	"image"
	"sync"
	"time"
)

// Frame is a display-ready RGBA frame. After Publish the producer no longer
// touches it; after TakeLatest it belongs to the caller until Release.
type Frame struct {
	Image     *image.RGBA
	Seq       uint64
	Timestamp time.Time
}

// Stats counts mailbox traffic since creation.
type Stats struct {
	Published uint64
	Taken     uint64
	Dropped   uint64
}

// Buffer holds at most one Frame. Publish never blocks on the consumer and
// TakeLatest never blocks on the producer beyond a pointer swap.
type Buffer struct {
	mu    sync.Mutex
	frame *Frame
	seq   uint64
	stats Stats

	pool sync.Pool
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Acquire returns a w×h RGBA image, reusing a released one when the size matches.
func (b *Buffer) Acquire(w, h int) *image.RGBA {
	if v := b.pool.Get(); v != nil {
		img := v.(*image.RGBA)
		if img.Rect.Dx() == w && img.Rect.Dy() == h {
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// Publish stores img as the latest frame, replacing (and recycling) any frame
// the consumer has not taken yet.
func (b *Buffer) Publish(img *image.RGBA, ts time.Time) {
	b.mu.Lock()
	b.seq++
	old := b.frame
	b.frame = &Frame{Image: img, Seq: b.seq, Timestamp: ts}
	b.stats.Published++
	if old != nil {
		b.stats.Dropped++
	}
	b.mu.Unlock()

	if old != nil {
		b.pool.Put(old.Image)
	}
}

// TakeLatest removes and returns the newest frame, or false if nothing was
// published since the previous call.
func (b *Buffer) TakeLatest() (*Frame, bool) {
	b.mu.Lock()
	f := b.frame
	b.frame = nil
	if f != nil {
		b.stats.Taken++
	}
	b.mu.Unlock()
	return f, f != nil
}

// Release hands a taken frame's pixels back for reuse. The frame must not be
// read afterwards.
func (b *Buffer) Release(f *Frame) {
	if f == nil {
		return
	}
	b.Recycle(f.Image)
	f.Image = nil
}

// Recycle returns an acquired image that was never published.
func (b *Buffer) Recycle(img *image.RGBA) {
	if img != nil {
		b.pool.Put(img)
	}
}

// Stats returns a copy of the traffic counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
