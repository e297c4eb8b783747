package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/junsooki/Zoetrope/internal/decoder"
)

// FirstFrameTimeout bounds how long Open waits for the camera to produce
// its first frame.
var FirstFrameTimeout = 5 * time.Second

const maxMJPEGFrame = 16 << 20

// ffmpegDevice reads camera frames from an ffmpeg subprocess writing to stdout.
type ffmpegDevice struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	opts   Options

	mjpeg *mjpegReader
	raw   *bufio.Reader
	buf   []byte

	first *RawFrame

	closeOnce sync.Once
}

// Open starts the camera and waits for its first frame, so that a wrong
// device or format fails here rather than inside the capture loop.
func Open(opts Options) (Device, error) {
	if _, err := decoder.ForFormat(opts.Format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("%w: %dx%d@%d", ErrFormatUnsupported, opts.Width, opts.Height, opts.FPS)
	}
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrDeviceUnavailable, err)
	}
	driver := opts.Driver
	if driver == "" {
		driver = defaultDriver()
	}
	if driver == "v4l2" {
		if _, err := os.Stat(opts.Device); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	d := &ffmpegDevice{
		stderr: &tailBuffer{max: 4096},
		opts:   opts,
	}
	d.cmd = exec.Command(bin, ffmpegArgs(driver, opts)...)
	d.cmd.Stderr = d.stderr
	d.stdout, err = d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrDeviceUnavailable, err)
	}
	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	if opts.Format == decoder.FormatMJPEG {
		d.mjpeg = newMJPEGReader(d.stdout, maxMJPEGFrame)
	} else {
		d.raw = bufio.NewReaderSize(d.stdout, 1<<20)
		d.buf = make([]byte, frameBytes(opts))
	}

	if err := d.probe(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *ffmpegDevice) probe() error {
	type result struct {
		f   RawFrame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := d.read()
		if err == nil {
			// the read buffer is reused; keep a private copy
			f.Data = append([]byte(nil), f.Data...)
		}
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return d.classify(r.err)
		}
		d.first = &r.f
		return nil
	case <-time.After(FirstFrameTimeout):
		d.Close()
		<-ch
		return fmt.Errorf("%w: no frame within %v", ErrDeviceUnavailable, FirstFrameTimeout)
	}
}

// classify maps an early ffmpeg failure onto the open error taxonomy.
func (d *ffmpegDevice) classify(err error) error {
	d.Close()
	msg := d.stderr.String()
	lower := strings.ToLower(msg)
	for _, s := range []string{"no such file", "no such device", "resource busy", "permission denied", "cannot open", "could not open"} {
		if strings.Contains(lower, s) {
			return fmt.Errorf("%w: %s", ErrDeviceUnavailable, strings.TrimSpace(msg))
		}
	}
	if msg == "" {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("%w: %s", ErrFormatUnsupported, strings.TrimSpace(msg))
}

func (d *ffmpegDevice) ReadFrame() (RawFrame, error) {
	if d.first != nil {
		f := *d.first
		d.first = nil
		return f, nil
	}
	f, err := d.read()
	if err != nil && !errors.Is(err, decoder.ErrDecode) {
		if tail := strings.TrimSpace(d.stderr.String()); tail != "" {
			return f, fmt.Errorf("%v: %s", err, tail)
		}
	}
	return f, err
}

func (d *ffmpegDevice) read() (RawFrame, error) {
	f := RawFrame{Width: d.opts.Width, Height: d.opts.Height, Format: d.opts.Format}
	if d.mjpeg != nil {
		data, err := d.mjpeg.Next()
		if err != nil {
			return f, err
		}
		f.Data = data
	} else {
		if _, err := io.ReadFull(d.raw, d.buf); err != nil {
			return f, err
		}
		f.Data = d.buf
	}
	f.Timestamp = time.Now()
	return f, nil
}

func (d *ffmpegDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.cmd.Process != nil {
			d.cmd.Process.Kill()
		}
		d.stdout.Close()
		if werr := d.cmd.Wait(); werr != nil && !isKilled(werr) {
			err = werr
		}
	})
	return err
}

func ffmpegArgs(driver string, opts Options) []string {
	size := fmt.Sprintf("%dx%d", opts.Width, opts.Height)
	args := []string{"-hide_banner", "-loglevel", "error", "-f", driver}
	if driver == "v4l2" && opts.Format != decoder.FormatRGBA {
		args = append(args, "-input_format", string(opts.Format))
	}
	args = append(args,
		"-framerate", strconv.Itoa(opts.FPS),
		"-video_size", size,
		"-i", opts.Device,
	)

	switch opts.Format {
	case decoder.FormatMJPEG:
		if driver == "v4l2" {
			args = append(args, "-c:v", "copy")
		} else {
			args = append(args, "-c:v", "mjpeg", "-q:v", "3")
		}
		args = append(args, "-f", "mjpeg")
	default:
		args = append(args,
			"-vf", fmt.Sprintf("scale=%d:%d", opts.Width, opts.Height),
			"-f", "rawvideo", "-pix_fmt", string(opts.Format))
	}
	return append(args, "-")
}

func frameBytes(opts Options) int {
	switch opts.Format {
	case decoder.FormatYUYV:
		return opts.Width * opts.Height * 2
	default:
		return opts.Width * opts.Height * 4
	}
}

func defaultDriver() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
