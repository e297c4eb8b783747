// Package modulator maps the crank signal onto the animation step and the
// audio playback rate. Every output is a pure function of the latest delta.
package modulator

import "math"

// Normalize scales delta by threshold and clamps to [-1, 1]. A non-positive
// threshold yields 0.
func Normalize(delta int8, threshold int) float64 {
	if threshold <= 0 {
		return 0
	}
	r := float64(delta) / float64(threshold)
	return math.Max(-1, math.Min(1, r))
}

// AnimationStep is the rotation in radians for one tick. A full-scale ratio
// turns the image by exactly one slice.
func AnimationStep(ratio float64, slices int) float64 {
	if slices <= 0 {
		return 0
	}
	return ratio * (2 * math.Pi / float64(slices))
}

// AudioRate is the signed playback rate multiplier.
func AudioRate(ratio float64, inverted bool) float64 {
	if inverted {
		return -ratio
	}
	return ratio
}

// Config is fixed for a session.
type Config struct {
	Threshold       int
	Slices          int
	InvertAudio     bool
	InvertAnimation bool
}

// Output is what one tick derives from one delta.
type Output struct {
	Ratio float64
	Step  float64
	Rate  float64
}

// Modulator applies a Config.
type Modulator struct {
	cfg Config
}

func New(cfg Config) *Modulator {
	return &Modulator{cfg: cfg}
}

func (m *Modulator) Config() Config { return m.cfg }

// Tick computes this tick's outputs from delta.
func (m *Modulator) Tick(delta int8) Output {
	ratio := Normalize(delta, m.cfg.Threshold)
	step := AnimationStep(ratio, m.cfg.Slices)
	if m.cfg.InvertAnimation {
		step = -step
	}
	return Output{
		Ratio: ratio,
		Step:  step,
		Rate:  AudioRate(ratio, m.cfg.InvertAudio),
	}
}

// Animator accumulates steps into the image angle. Only the tick loop uses it.
type Animator struct {
	angle float64
}

// Advance adds step and returns the new angle in [0, 2π).
func (a *Animator) Advance(step float64) float64 {
	a.angle = math.Mod(a.angle+step, 2*math.Pi)
	if a.angle < 0 {
		a.angle += 2 * math.Pi
	}
	return a.angle
}

func (a *Animator) Angle() float64 { return a.angle }

// ManualBoost multiplies the audio rate while the boost key is held.
const ManualBoost = 2.5

// Manual is the keyboard fallback for a missing crank: dir is -1, 0 or 1 and
// acts as a full-scale sample. boost speeds up the audio only.
func (m *Modulator) Manual(dir int, boost bool) Output {
	ratio := float64(max(-1, min(1, dir)))
	out := Output{Ratio: ratio, Step: AnimationStep(ratio, m.cfg.Slices)}
	if m.cfg.InvertAnimation {
		out.Step = -out.Step
	}
	out.Rate = AudioRate(ratio, m.cfg.InvertAudio)
	if boost {
		out.Rate *= ManualBoost
	}
	return out
}
