package display

import (
	"image"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/junsooki/Zoetrope/internal/framebuf"
	"github.com/junsooki/Zoetrope/internal/modulator"
	"github.com/junsooki/Zoetrope/internal/monitor"
	"github.com/junsooki/Zoetrope/internal/rotation"
)

type recordingSink struct {
	rates  []float64
	volume float64
}

func (s *recordingSink) SetRate(r float64)   { s.rates = append(s.rates, r) }
func (s *recordingSink) SetVolume(v float64) { s.volume = v }
func (s *recordingSink) Volume() float64     { return s.volume }

func TestGameTickFollowsCrank(t *testing.T) {
	sig, w := rotation.NewSignal()
	w.SetState(rotation.Subscribed)
	sink := &recordingSink{volume: 0.5}
	board := monitor.NewBoard()
	g := NewGame(framebuf.New(), sig, modulator.New(modulator.Config{Threshold: 10, Slices: 24, InvertAudio: true}), sink, board, GameOptions{})

	slice := 2 * math.Pi / 24
	deltas := []int8{0, 5, 10, 15, -20}
	steps := []float64{0, slice * 0.5, slice, slice, -slice}
	var angle float64
	for i, d := range deltas {
		w.Publish(d)
		g.tick(0, false)
		got, _ := board.Latest()
		if math.Abs(got.Step-steps[i]) > 1e-12 {
			t.Errorf("tick %d: step %v, want %v", i, got.Step, steps[i])
		}
		angle = math.Mod(angle+steps[i]+2*math.Pi, 2*math.Pi)
		if math.Abs(got.Angle-angle) > 1e-9 {
			t.Errorf("tick %d: angle %v, want %v", i, got.Angle, angle)
		}
		if got.Delta != d || got.State != rotation.Subscribed {
			t.Errorf("tick %d: telemetry %+v", i, got)
		}
	}
	wantRates := []float64{0, -0.5, -1, -1, 1}
	for i, r := range wantRates {
		if sink.rates[i] != r {
			t.Errorf("rate %d = %v, want %v", i, sink.rates[i], r)
		}
	}
}

func TestGameKeyboardOverridesCrank(t *testing.T) {
	sig, w := rotation.NewSignal()
	w.Publish(5)
	sink := &recordingSink{}
	board := monitor.NewBoard()
	g := NewGame(framebuf.New(), sig, modulator.New(modulator.Config{Threshold: 10, Slices: 24}), sink, board, GameOptions{})

	g.tick(-1, true)
	got, _ := board.Latest()
	if got.Ratio != -1 || got.Rate != -modulator.ManualBoost {
		t.Errorf("manual tick telemetry %+v", got)
	}
}

func TestGameTickIsNonBlockingWithoutFrames(t *testing.T) {
	sig, _ := rotation.NewSignal()
	g := NewGame(framebuf.New(), sig, modulator.New(modulator.Config{Threshold: 10, Slices: 24}), nil, nil, GameOptions{})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			g.tick(0, false)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick blocked")
	}
}

func TestGameTelemetryCountsFrames(t *testing.T) {
	sig, _ := rotation.NewSignal()
	buf := framebuf.New()
	board := monitor.NewBoard()
	g := NewGame(buf, sig, modulator.New(modulator.Config{Threshold: 10, Slices: 24}), nil, board, GameOptions{})

	buf.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)), time.Now())
	buf.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)), time.Now())
	g.tick(0, false)
	got, _ := board.Latest()
	if got.Frames != 2 || got.Drops != 1 {
		t.Errorf("frames=%d drops=%d, want 2 and 1", got.Frames, got.Drops)
	}
}

func TestStatusText(t *testing.T) {
	s := statusText(monitor.Telemetry{State: rotation.Scanning, Delta: -3, Volume: 0.5}, true, 60)
	for _, want := range []string{"waiting for crank", "scanning", "-3", "waiting for camera", "tps 60"} {
		if !strings.Contains(s, want) {
			t.Errorf("status %q missing %q", s, want)
		}
	}
	s = statusText(monitor.Telemetry{State: rotation.Subscribed}, false, 60)
	if strings.Contains(s, "waiting") {
		t.Errorf("status %q still waiting", s)
	}
}

func TestSpinTransformKeepsCentre(t *testing.T) {
	for _, angle := range []float64{0, math.Pi / 3, math.Pi, 5} {
		m := spinTransform(1920, 1080, 720, 720, angle)
		x, y := m.Apply(360, 360)
		if math.Abs(x-960) > 1e-9 || math.Abs(y-540) > 1e-9 {
			t.Errorf("angle %v: frame centre maps to (%v, %v), want (960, 540)", angle, x, y)
		}
	}
	m := spinTransform(1920, 1080, 720, 720, 0)
	x, y := m.Apply(0, 0)
	if math.Abs(x-420) > 1e-9 || math.Abs(y-0) > 1e-9 {
		t.Errorf("unrotated corner maps to (%v, %v), want (420, 0)", x, y)
	}
}

func TestAspectFitTransform(t *testing.T) {
	scale, ox, oy := aspectFitTransform(1920, 1080, 1080, 1080)
	if scale != 1 || ox != 420 || oy != 0 {
		t.Errorf("got scale %v offset (%v, %v)", scale, ox, oy)
	}
}

func TestTelemetryText(t *testing.T) {
	s := telemetryText(monitor.Telemetry{State: rotation.Subscribed, Delta: 7, Frames: 12})
	for _, want := range []string{"subscribed", "+7", "frames 12"} {
		if !strings.Contains(s, want) {
			t.Errorf("telemetry text %q missing %q", s, want)
		}
	}
}
