package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/junsooki/Zoetrope/internal/capture"
	"github.com/junsooki/Zoetrope/internal/framebuf"
)

// OpenFunc opens a camera device.
type OpenFunc func(capture.Options) (capture.Device, error)

// Supervisor keeps a capture.Source running. A camera that fails to open or
// drops out is reopened with backoff; meanwhile the last frame stays on
// screen.
type Supervisor struct {
	Open    OpenFunc
	Options capture.Options
	Out     *framebuf.Buffer

	Preview     *framebuf.Buffer
	PreviewSize int
	PreviewFPS  int

	Initial time.Duration
	Max     time.Duration
	// Healthy is how long a source must run before the delay resets.
	Healthy time.Duration
}

// NewSupervisor supervises cameras opened with capture.Open.
func NewSupervisor(opts capture.Options, out *framebuf.Buffer) *Supervisor {
	return &Supervisor{
		Open:    capture.Open,
		Options: opts,
		Out:     out,
		Initial: time.Second,
		Max:     30 * time.Second,
		Healthy: 10 * time.Second,
	}
}

// Run returns ctx.Err() when ctx is done, or an error if the capture
// geometry is unusable and retrying cannot help.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.Initial
	for {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errFatal) {
			return err
		}
		if time.Since(started) >= s.Healthy {
			delay = s.Initial
		}
		log.Printf("capture: %v; retrying in %v", err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, s.Max)
	}
}

var errFatal = errors.New("capture setup failed")

func (s *Supervisor) runOnce(ctx context.Context) error {
	dev, err := s.Open(s.Options)
	if errors.Is(err, capture.ErrFormatUnsupported) {
		return fmt.Errorf("%w: %w", errFatal, err)
	}
	if err != nil {
		return err
	}
	src, err := capture.NewSource(dev, s.Options, s.Out)
	if err != nil {
		dev.Close()
		return fmt.Errorf("%w: %v", errFatal, err)
	}
	src.SetPreview(s.Preview, s.PreviewSize, s.PreviewFPS)
	if err := src.Start(); err != nil {
		src.Stop()
		return fmt.Errorf("%w: %v", errFatal, err)
	}
	log.Printf("capture: %s running at %dx%d@%d", s.Options.Device, s.Options.Width, s.Options.Height, s.Options.FPS)

	select {
	case <-ctx.Done():
		src.Stop()
		return ctx.Err()
	case <-src.Done():
		frames, dropped := src.Counts()
		return fmt.Errorf("%w after %d frames (%d dropped)", src.Err(), frames, dropped)
	}
}
