package framebuf

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fill(img []byte, v byte) {
	for i := range img {
		img[i] = v
	}
}

func TestTakeLatestEmpty(t *testing.T) {
	b := New()
	if f, ok := b.TakeLatest(); ok || f != nil {
		t.Fatalf("TakeLatest() on empty buffer = %v, %v; want nil, false", f, ok)
	}
}

func TestPublishOverwritesUnconsumed(t *testing.T) {
	b := New()
	for i := 1; i <= 3; i++ {
		img := b.Acquire(4, 4)
		fill(img.Pix, byte(i))
		b.Publish(img, time.Now())
	}

	f, ok := b.TakeLatest()
	if !ok {
		t.Fatal("TakeLatest() = false after publish")
	}
	if f.Seq != 3 || f.Image.Pix[0] != 3 {
		t.Errorf("got seq=%d pix=%d, want newest frame (seq=3 pix=3)", f.Seq, f.Image.Pix[0])
	}
	if _, ok := b.TakeLatest(); ok {
		t.Error("second TakeLatest() returned a frame; want none until next publish")
	}

	st := b.Stats()
	if st.Published != 3 || st.Dropped != 2 || st.Taken != 1 {
		t.Errorf("Stats() = %+v, want published=3 dropped=2 taken=1", st)
	}
}

func TestAcquireReusesReleased(t *testing.T) {
	b := New()
	img := b.Acquire(8, 2)
	b.Publish(img, time.Now())
	f, _ := b.TakeLatest()
	b.Release(f)
	if f.Image != nil {
		t.Error("Release() did not clear the frame image")
	}

	other := b.Acquire(3, 3)
	if other.Rect.Dx() != 3 || other.Rect.Dy() != 3 {
		t.Errorf("Acquire(3,3) returned %v", other.Rect)
	}
}

// TestNoTornFrames hammers the buffer from a producer that writes each frame
// uniformly with one byte value while a reader polls. Every frame seen must be
// uniform and sequence numbers must only grow.
func TestNoTornFrames(t *testing.T) {
	const (
		w, h   = 64, 64
		frames = 5000
	)
	b := New()

	var wg sync.WaitGroup
	var done atomic.Bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer done.Store(true)
		for i := 0; i < frames; i++ {
			img := b.Acquire(w, h)
			fill(img.Pix, byte(i))
			b.Publish(img, time.Now())
		}
	}()

	var lastSeq uint64
	seen := 0
	for !done.Load() || seen == 0 {
		f, ok := b.TakeLatest()
		if !ok {
			continue
		}
		seen++
		if f.Seq <= lastSeq {
			t.Fatalf("sequence went backwards: %d after %d", f.Seq, lastSeq)
		}
		lastSeq = f.Seq
		want := f.Image.Pix[0]
		for i, p := range f.Image.Pix {
			if p != want {
				t.Fatalf("torn frame seq=%d: pix[%d]=%d, pix[0]=%d", f.Seq, i, p, want)
			}
		}
		b.Release(f)
	}
	wg.Wait()

	st := b.Stats()
	if st.Published != frames {
		t.Errorf("Published = %d, want %d", st.Published, frames)
	}
	if st.Taken+st.Dropped > st.Published+1 {
		t.Errorf("taken(%d)+dropped(%d) exceeds published(%d)", st.Taken, st.Dropped, st.Published)
	}
	t.Logf("reader saw %d of %d frames", seen, frames)
}

func TestTakeLatestDoesNotBlockDuringPublishes(t *testing.T) {
	b := New()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(b.Acquire(32, 32), time.Now())
			}
		}
	}()
	defer close(stop)

	for i := 0; i < 1000; i++ {
		start := time.Now()
		if f, ok := b.TakeLatest(); ok {
			b.Release(f)
		}
		if d := time.Since(start); d > 50*time.Millisecond {
			t.Fatalf("TakeLatest() took %v", d)
		}
	}
}
