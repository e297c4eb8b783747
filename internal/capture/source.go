package capture

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/junsooki/Zoetrope/internal/decoder"
	"github.com/junsooki/Zoetrope/internal/framebuf"
)

// Source runs the capture loop for one opened Device and publishes display
// frames into a framebuf.Buffer.
type Source struct {
	dev  Device
	dec  decoder.Decoder
	crop *Cropper
	out  *framebuf.Buffer

	preview      *framebuf.Buffer
	previewSize  int
	previewEvery time.Duration
	lastPreview  time.Time

	stopCh chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error

	frames  atomic.Uint64
	dropped atomic.Uint64
	dropLog rateLimitedLog
}

// NewSource prepares a capture loop over dev. It takes ownership of dev.
func NewSource(dev Device, opts Options, out *framebuf.Buffer) (*Source, error) {
	dec, err := decoder.ForFormat(opts.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}
	crop, err := NewCropper(opts.Width, opts.Height, opts.CropX, opts.CropY, opts.OutputSize)
	if err != nil {
		return nil, fmt.Errorf("capture geometry: %w", err)
	}
	return &Source{
		dev:     dev,
		dec:     dec,
		crop:    crop,
		out:     out,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		dropLog: rateLimitedLog{every: time.Second},
	}, nil
}

// SetPreview also publishes a size×size copy into buf at most fps times per
// second. Must be called before Start.
func (s *Source) SetPreview(buf *framebuf.Buffer, size, fps int) {
	if buf == nil || size <= 0 || fps <= 0 {
		return
	}
	s.preview = buf
	s.previewSize = size
	s.previewEvery = time.Second / time.Duration(fps)
}

func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("capture already %s", s.state)
	}
	s.state = StateRunning
	go s.loop()
	return nil
}

// Stop ends the loop, releases the device and waits for the goroutine.
func (s *Source) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateStopped
		s.mu.Unlock()
		s.dev.Close()
		return
	case StateRunning:
		close(s.stopCh)
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.dev.Close(); err != nil {
		log.Printf("capture: close device: %v", err)
	}
	<-s.done
}

// Done is closed when the loop has exited, either stopped or failed.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err reports why a failed source stopped; nil while running or after Stop.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TakeLatest returns the newest display frame, never blocking.
func (s *Source) TakeLatest() (*framebuf.Frame, bool) {
	return s.out.TakeLatest()
}

// Counts returns published and dropped (undecodable) frame totals.
func (s *Source) Counts() (frames, dropped uint64) {
	return s.frames.Load(), s.dropped.Load()
}

func (s *Source) loop() {
	defer close(s.done)
	defer s.dev.Close()

	for {
		select {
		case <-s.stopCh:
			s.finish(nil)
			return
		default:
		}

		raw, err := s.dev.ReadFrame()
		if err != nil {
			if s.stopping() {
				s.finish(nil)
				return
			}
			if errors.Is(err, decoder.ErrDecode) {
				s.drop(err)
				continue
			}
			s.finish(fmt.Errorf("%w: %v", ErrDeviceLost, err))
			return
		}
		if err := s.process(raw); err != nil {
			s.drop(err)
		}
	}
}

func (s *Source) process(raw RawFrame) error {
	img, err := s.dec.Decode(raw.Data, raw.Width, raw.Height)
	if err != nil {
		return err
	}

	size := s.crop.Size()
	dst := s.out.Acquire(size, size)
	if err := s.crop.Apply(dst, img); err != nil {
		s.out.Recycle(dst)
		return err
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if s.preview != nil && ts.Sub(s.lastPreview) >= s.previewEvery {
		s.lastPreview = ts
		p := s.preview.Acquire(s.previewSize, s.previewSize)
		draw.ApproxBiLinear.Scale(p, p.Bounds(), dst, dst.Bounds(), draw.Src, nil)
		s.preview.Publish(p, ts)
	}

	s.out.Publish(dst, ts)
	s.frames.Add(1)
	return nil
}

func (s *Source) drop(err error) {
	s.dropped.Add(1)
	s.dropLog.printf("capture: drop frame: %v", err)
}

func (s *Source) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Source) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.err = err
		log.Printf("capture: %v", err)
		return
	}
	s.state = StateStopped
}

// rateLimitedLog prints at most once per interval and reports how many lines
// it swallowed in between. Only the capture goroutine uses it.
type rateLimitedLog struct {
	every      time.Duration
	last       time.Time
	suppressed int
}

func (l *rateLimitedLog) printf(format string, args ...any) {
	now := time.Now()
	if now.Sub(l.last) < l.every {
		l.suppressed++
		return
	}
	if l.suppressed > 0 {
		format += fmt.Sprintf(" (%d more suppressed)", l.suppressed)
	}
	log.Printf(format, args...)
	l.last = now
	l.suppressed = 0
}
