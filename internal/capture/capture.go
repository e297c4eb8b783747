// Package capture owns the camera: a goroutine that reads frames from the
// device, squares and scales them, and publishes the newest one for the
// renderer.
package capture

import (
	"errors"
	"time"

	"github.com/junsooki/Zoetrope/internal/decoder"
)

var (
	// ErrDeviceUnavailable means the camera could not be opened.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrFormatUnsupported means the camera refused the requested format.
	ErrFormatUnsupported = errors.New("camera format unsupported")
	// ErrDeviceLost means a running camera stopped delivering frames. The
	// source that reports it is finished and must be reopened by its owner.
	ErrDeviceLost = errors.New("camera device lost")
)

// RawFrame is one device-native frame. Data is only valid until the next
// ReadFrame call on the same device.
type RawFrame struct {
	Data      []byte
	Width     int
	Height    int
	Format    decoder.Format
	Timestamp time.Time
}

// Device is a camera stream. ReadFrame blocks until the next frame arrives.
// Errors wrapping decoder.ErrDecode affect one frame only; any other error
// is fatal for the device. Close unblocks a pending ReadFrame.
type Device interface {
	ReadFrame() (RawFrame, error)
	Close() error
}

// Options selects the camera and the output geometry.
type Options struct {
	Device string // "/dev/video0" for v4l2, "0" for avfoundation
	Driver string // ffmpeg input format; empty picks the platform default

	Width  int
	Height int
	FPS    int
	Format decoder.Format

	// OutputSize is the side of the square display frame.
	OutputSize int
	// CropX/CropY are the top-left corner of the square crop in the raw
	// frame. A negative CropX centres the square horizontally.
	CropX int
	CropY int
}

// State is the lifecycle of a Source.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
