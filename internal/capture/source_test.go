package capture

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/junsooki/Zoetrope/internal/decoder"
	"github.com/junsooki/Zoetrope/internal/framebuf"
)

func testOptions(w, h, size int) Options {
	return Options{Width: w, Height: h, FPS: 30, Format: decoder.FormatRGBA, OutputSize: size, CropX: -1}
}

func waitDone(t *testing.T, s *Source) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture loop did not exit")
	}
}

func TestSourcePublishesSquareFrames(t *testing.T) {
	dev := newFakeDevice(32, 16, time.Millisecond)
	buf := framebuf.New()
	src, err := NewSource(dev, testOptions(32, 16, 8), buf)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := src.TakeLatest(); ok {
			if b := f.Image.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
				t.Fatalf("frame bounds = %v, want 8x8", b)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no frame published")
}

func TestSourceDropsUndecodableFrames(t *testing.T) {
	dev := newFakeDevice(8, 8, 0)
	dev.next = func(i int) (RawFrame, error, bool) {
		switch {
		case i < 3:
			// too short for an 8x8 RGBA frame
			return RawFrame{Data: make([]byte, 10), Width: 8, Height: 8}, nil, true
		case i < 5:
			return RawFrame{}, fmt.Errorf("%w: corrupt marker", decoder.ErrDecode), true
		}
		return RawFrame{}, nil, false
	}
	buf := framebuf.New()
	src, err := NewSource(dev, testOptions(8, 8, 8), buf)
	if err != nil {
		t.Fatal(err)
	}
	src.Start()
	defer src.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, dropped := src.Counts(); dropped >= 5 {
			if _, ok := src.TakeLatest(); ok {
				if st := src.State(); st != StateRunning {
					t.Fatalf("state = %v after decode failures, want running", st)
				}
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	frames, dropped := src.Counts()
	t.Fatalf("frames=%d dropped=%d; want 5 drops followed by a good frame", frames, dropped)
}

func TestSourceFatalErrorIsTerminal(t *testing.T) {
	dev := newFakeDevice(8, 8, 0)
	dev.next = func(i int) (RawFrame, error, bool) {
		if i == 2 {
			return RawFrame{}, errors.New("usb disconnect"), true
		}
		return RawFrame{}, nil, false
	}
	src, _ := NewSource(dev, testOptions(8, 8, 8), framebuf.New())
	src.Start()
	waitDone(t, src)

	if st := src.State(); st != StateFailed {
		t.Errorf("state = %v, want failed", st)
	}
	if err := src.Err(); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Err() = %v, want ErrDeviceLost", err)
	}
	if !dev.isClosed() {
		t.Error("device not released after fatal error")
	}
	if err := src.Start(); err == nil {
		t.Error("Start() on a failed source succeeded; want re-acquisition via a new Source")
	}
	src.Stop()
}

func TestSourceStopReleasesDevice(t *testing.T) {
	dev := newFakeDevice(8, 8, 10*time.Millisecond)
	src, _ := NewSource(dev, testOptions(8, 8, 8), framebuf.New())
	src.Start()
	time.Sleep(30 * time.Millisecond)

	src.Stop()
	waitDone(t, src)
	if !dev.isClosed() {
		t.Error("Stop() did not close the device")
	}
	if st := src.State(); st != StateStopped {
		t.Errorf("state = %v, want stopped", st)
	}
	if err := src.Err(); err != nil {
		t.Errorf("Err() = %v after Stop, want nil", err)
	}
	src.Stop()
}

func TestSourceRejectsUnknownFormat(t *testing.T) {
	opts := testOptions(8, 8, 8)
	opts.Format = "h265"
	if _, err := NewSource(newFakeDevice(8, 8, 0), opts, framebuf.New()); !errors.Is(err, ErrFormatUnsupported) {
		t.Fatalf("err = %v, want ErrFormatUnsupported", err)
	}
}

func TestSourcePreviewTap(t *testing.T) {
	dev := newFakeDevice(16, 16, time.Millisecond)
	preview := framebuf.New()
	src, _ := NewSource(dev, testOptions(16, 16, 16), framebuf.New())
	src.SetPreview(preview, 4, 1000)
	src.Start()
	defer src.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := preview.TakeLatest(); ok {
			if f.Image.Bounds().Dx() != 4 {
				t.Fatalf("preview size = %v, want 4x4", f.Image.Bounds())
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no preview frame")
}

// TestCameraSlowerThanTicks runs a 30 fps camera against a 60 Hz poller. About
// every other tick should see a new frame and no poll may block.
func TestCameraSlowerThanTicks(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	dev := newFakeDevice(64, 48, time.Second/30)
	src, _ := NewSource(dev, testOptions(64, 48, 48), framebuf.New())
	src.Start()
	defer src.Stop()

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	var ticks, hits int
	var slowest time.Duration
	for range ticker.C {
		if ticks == 60 {
			break
		}
		ticks++
		start := time.Now()
		f, ok := src.TakeLatest()
		if d := time.Since(start); d > slowest {
			slowest = d
		}
		if ok {
			hits++
			src.out.Release(f)
		}
	}

	if slowest > 5*time.Millisecond {
		t.Errorf("slowest TakeLatest = %v, want non-blocking", slowest)
	}
	if hits < 15 || hits > 45 {
		t.Errorf("new frame on %d of %d ticks, want roughly half", hits, ticks)
	}
	t.Logf("%d/%d ticks had a new frame, slowest poll %v", hits, ticks, slowest)
}
