// Package config parses command-line flags, with an optional YAML file
// underneath them.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/junsooki/Zoetrope/internal/capture"
	"github.com/junsooki/Zoetrope/internal/decoder"
	"github.com/junsooki/Zoetrope/internal/modulator"
)

// ErrInvalid marks a configuration that cannot run.
var ErrInvalid = errors.New("invalid configuration")

// Defaults for the installation.
const (
	DefaultThreshold = 10
	DefaultSlices    = 24
	DefaultVolume    = 0.5
)

type CameraConfig struct {
	Device      string `yaml:"device"`
	Driver      string `yaml:"driver"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FPS         int    `yaml:"fps"`
	Format      string `yaml:"format"`
	Quality     string `yaml:"quality"`
	CropX       int    `yaml:"crop_x"`
	CropY       int    `yaml:"crop_y"`
	OutputSize  int    `yaml:"output_size"`
	ListCameras bool   `yaml:"-"`
}

type SensorConfig struct {
	Transport       string `yaml:"transport"`
	SerialBaud      uint   `yaml:"serial_baud"`
	Backoff         bool   `yaml:"backoff"`
	Threshold       int    `yaml:"threshold"`
	Slices          int    `yaml:"slices"`
	InvertAudio     bool   `yaml:"invert_audio"`
	InvertAnimation bool   `yaml:"invert_animation"`
}

type AudioConfig struct {
	Track  string  `yaml:"track"`
	Volume float64 `yaml:"volume"`
}

type DisplayConfig struct {
	Fullscreen bool   `yaml:"fullscreen"`
	TPS        int    `yaml:"tps"`
	Mask       string `yaml:"mask"`
}

type MonitorConfig struct {
	SignalingURL   string `yaml:"signaling"`
	HostID         string `yaml:"id"`
	Name           string `yaml:"name"`
	PreviewSize    int    `yaml:"preview_size"`
	PreviewFPS     int    `yaml:"preview_fps"`
	PreviewQuality int    `yaml:"preview_quality"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Prefix   string `yaml:"prefix"`
	ClientID string `yaml:"client_id"`
}

// Config holds all runtime configuration of the installation.
type Config struct {
	Camera    CameraConfig  `yaml:"camera"`
	Sensor    SensorConfig  `yaml:"sensor"`
	Audio     AudioConfig   `yaml:"audio"`
	Display   DisplayConfig `yaml:"display"`
	Monitor   MonitorConfig `yaml:"monitor"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	StatusLED string        `yaml:"status_led"`

	Path string `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Device:     defaultCamera(),
			Width:      3840,
			Height:     2160,
			FPS:        30,
			Format:     string(decoder.FormatMJPEG),
			CropX:      -1,
			OutputSize: 1080,
		},
		Sensor: SensorConfig{
			Transport:  "ble",
			SerialBaud: 9600,
			Threshold:  DefaultThreshold,
			Slices:     DefaultSlices,
		},
		Audio:   AudioConfig{Volume: DefaultVolume},
		Display: DisplayConfig{Fullscreen: true, TPS: 60},
		Monitor: MonitorConfig{
			Name:           "zoetrope",
			PreviewSize:    360,
			PreviewFPS:     10,
			PreviewQuality: 70,
		},
		MQTT: MQTTConfig{Prefix: "zoetrope"},
	}
}

func defaultCamera() string {
	switch runtime.GOOS {
	case "darwin":
		return "0"
	case "windows":
		return "video=USB Camera"
	default:
		return "/dev/video0"
	}
}

// Parse reads the installation's flags. A -config file is applied first and
// any flag given on the command line overrides it.
func Parse(args []string) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("zoetrope", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bind(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		if err := cfg.load(cfg.Path); err != nil {
			return nil, err
		}
		// explicit flags win over the file
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := cfg.applyQuality(set); err != nil {
		return nil, err
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = fmt.Sprintf("zoetrope-%s", randomID())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage returns the flag help text.
func Usage() string {
	var b strings.Builder
	fs := flag.NewFlagSet("zoetrope", flag.ContinueOnError)
	fs.SetOutput(&b)
	bind(fs, Default())
	fs.PrintDefaults()
	return b.String()
}

func bind(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Path, "config", "", "YAML configuration file")

	c := &cfg.Camera
	fs.StringVar(&c.Device, "camera", c.Device, "Camera device (path, index or name, per driver)")
	fs.StringVar(&c.Driver, "camera-driver", c.Driver, "ffmpeg input driver (default per OS: v4l2, avfoundation, dshow)")
	fs.IntVar(&c.Width, "width", c.Width, "Camera frame width")
	fs.IntVar(&c.Height, "height", c.Height, "Camera frame height")
	fs.IntVar(&c.FPS, "fps", c.FPS, "Camera frame rate")
	fs.StringVar(&c.Format, "format", c.Format, "Camera pixel format: mjpeg, yuyv422 or rgba")
	fs.StringVar(&c.Quality, "quality", c.Quality, "Camera preset: 4k30, 1080p60 or 1440p60")
	fs.IntVar(&c.CropX, "crop-x", c.CropX, "Left edge of the square crop (-1 centres it)")
	fs.IntVar(&c.CropY, "crop-y", c.CropY, "Top edge of the square crop (-1 centres it)")
	fs.IntVar(&c.OutputSize, "size", c.OutputSize, "Side of the displayed square in pixels")
	fs.BoolVar(&c.ListCameras, "list-cameras", false, "List cameras and exit")

	s := &cfg.Sensor
	fs.StringVar(&s.Transport, "sensor-transport", s.Transport, "Crank link: ble or serial")
	fs.UintVar(&s.SerialBaud, "serial-baud", s.SerialBaud, "Baud rate of a serial crank")
	fs.BoolVar(&s.Backoff, "sensor-backoff", s.Backoff, "Back off between failed discovery cycles")
	fs.IntVar(&s.Threshold, "threshold", s.Threshold, "Crank reading that gives full speed")
	fs.IntVar(&s.Slices, "slices", s.Slices, "Number of slices in the zoetrope")
	fs.BoolVar(&s.InvertAudio, "invert-audio", s.InvertAudio, "Play audio backwards when the crank turns forwards")
	fs.BoolVar(&s.InvertAnimation, "invert-animation", s.InvertAnimation, "Turn the image the other way")

	fs.StringVar(&cfg.Audio.Track, "audio", cfg.Audio.Track, "Soundtrack file (mp3, wav or ogg)")
	fs.Float64Var(&cfg.Audio.Volume, "volume", cfg.Audio.Volume, "Initial volume (0-1)")

	fs.BoolVar(&cfg.Display.Fullscreen, "fullscreen", cfg.Display.Fullscreen, "Run fullscreen")
	fs.IntVar(&cfg.Display.TPS, "tps", cfg.Display.TPS, "Ticks per second")
	fs.StringVar(&cfg.Display.Mask, "mask", cfg.Display.Mask, "PNG drawn over the image, turning with it")

	m := &cfg.Monitor
	fs.StringVar(&m.SignalingURL, "signaling", m.SignalingURL, "Signaling server WebSocket URL (empty disables the remote monitor)")
	fs.StringVar(&m.HostID, "id", m.HostID, "Host ID (auto-generated if empty)")
	fs.StringVar(&m.Name, "name", m.Name, "Name shown to monitors")
	fs.IntVar(&m.PreviewSize, "preview-size", m.PreviewSize, "Side of the preview sent to monitors")
	fs.IntVar(&m.PreviewFPS, "preview-fps", m.PreviewFPS, "Preview frames per second")
	fs.IntVar(&m.PreviewQuality, "preview-quality", m.PreviewQuality, "Preview JPEG quality (1-100)")

	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", cfg.MQTT.Broker, "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables MQTT)")
	fs.StringVar(&cfg.MQTT.Prefix, "mqtt-prefix", cfg.MQTT.Prefix, "MQTT topic prefix")
	fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", cfg.MQTT.ClientID, "MQTT client ID (auto-generated if empty)")

	fs.StringVar(&cfg.StatusLED, "status-led", cfg.StatusLED, "GPIO pin for the crank status LED, e.g. GPIO17")
}

func (c *Config) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

type preset struct{ width, height, fps int }

var presets = map[string]preset{
	"4k30":    {3840, 2160, 30},
	"1080p60": {1920, 1080, 60},
	"1440p60": {2560, 1440, 60},
}

// applyQuality fills in the preset's size and rate, except for values set
// explicitly on the command line.
func (c *Config) applyQuality(set map[string]bool) error {
	if c.Camera.Quality == "" {
		return nil
	}
	p, ok := presets[strings.ToLower(c.Camera.Quality)]
	if !ok {
		return fmt.Errorf("%w: unknown quality %q", ErrInvalid, c.Camera.Quality)
	}
	if !set["width"] {
		c.Camera.Width = p.width
	}
	if !set["height"] {
		c.Camera.Height = p.height
	}
	if !set["fps"] {
		c.Camera.FPS = p.fps
	}
	return nil
}

// Validate reports the first setting the installation cannot run with.
func (c *Config) Validate() error {
	cam := c.Camera
	switch {
	case c.Sensor.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalid, c.Sensor.Threshold)
	case c.Sensor.Slices <= 0:
		return fmt.Errorf("%w: slices must be positive, got %d", ErrInvalid, c.Sensor.Slices)
	case cam.Width <= 0 || cam.Height <= 0 || cam.FPS <= 0:
		return fmt.Errorf("%w: camera mode %dx%d@%d", ErrInvalid, cam.Width, cam.Height, cam.FPS)
	case cam.OutputSize <= 0:
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalid, cam.OutputSize)
	case c.Audio.Volume < 0 || c.Audio.Volume > 1:
		return fmt.Errorf("%w: volume %v outside 0-1", ErrInvalid, c.Audio.Volume)
	case c.Sensor.Transport != "ble" && c.Sensor.Transport != "serial":
		return fmt.Errorf("%w: unknown sensor transport %q", ErrInvalid, c.Sensor.Transport)
	case c.Monitor.PreviewSize <= 0 || c.Monitor.PreviewFPS <= 0:
		return fmt.Errorf("%w: preview %dpx@%d", ErrInvalid, c.Monitor.PreviewSize, c.Monitor.PreviewFPS)
	}
	if _, err := decoder.ForFormat(decoder.Format(cam.Format)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	side := min(cam.Width, cam.Height)
	if cam.CropX+side > cam.Width || cam.CropY+side > cam.Height {
		return fmt.Errorf("%w: %dpx crop at (%d,%d) does not fit %dx%d", ErrInvalid, side, cam.CropX, cam.CropY, cam.Width, cam.Height)
	}
	return nil
}

// CaptureOptions converts the camera section for capture.Open.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		Device:     c.Camera.Device,
		Driver:     c.Camera.Driver,
		Width:      c.Camera.Width,
		Height:     c.Camera.Height,
		FPS:        c.Camera.FPS,
		Format:     decoder.Format(c.Camera.Format),
		OutputSize: c.Camera.OutputSize,
		CropX:      c.Camera.CropX,
		CropY:      c.Camera.CropY,
	}
}

// ModulatorConfig converts the sensor section for modulator.New.
func (c *Config) ModulatorConfig() modulator.Config {
	return modulator.Config{
		Threshold:       c.Sensor.Threshold,
		Slices:          c.Sensor.Slices,
		InvertAudio:     c.Sensor.InvertAudio,
		InvertAnimation: c.Sensor.InvertAnimation,
	}
}

// MonitorViewerConfig holds configuration for the monitor binary.
type MonitorViewerConfig struct {
	SignalingURL string
	ViewerID     string
	HostID       string
}

// ParseMonitorFlags parses flags for the monitor binary.
func ParseMonitorFlags(args []string) (*MonitorViewerConfig, error) {
	cfg := &MonitorViewerConfig{}
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	fs.StringVar(&cfg.SignalingURL, "signaling", "ws://localhost:8080", "Signaling server WebSocket URL")
	fs.StringVar(&cfg.ViewerID, "id", "", "Monitor ID (auto-generated if empty)")
	fs.StringVar(&cfg.HostID, "host", "", "Installation to watch (first registered if empty)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = fmt.Sprintf("monitor-%s", randomID())
	}
	return cfg, nil
}

// SignalConfig holds configuration for the signaling relay.
type SignalConfig struct {
	Addr string
}

// ParseSignalFlags parses flags for the signaling relay binary.
func ParseSignalFlags(args []string) (*SignalConfig, error) {
	cfg := &SignalConfig{}
	fs := flag.NewFlagSet("signal", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", ":8080", "Listen address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func randomID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
