// Package audio plays the installation's soundtrack at a rate and direction
// set every tick from the crank.
package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
)

// ScrubStream is an endless 16-bit stereo little-endian PCM reader that loops
// over a decoded track at a variable, signed rate. Rate 1 is normal speed,
// negative rates play backwards and 0 is silence.
type ScrubStream struct {
	frames [][2]int16

	rate atomic.Uint64 // float64 bits

	mu  sync.Mutex
	pos float64 // in frames, [0, len(frames))
}

// NewScrubStream takes interleaved 16-bit stereo PCM bytes.
func NewScrubStream(pcm []byte) *ScrubStream {
	n := len(pcm) / 4
	frames := make([][2]int16, n)
	for i := range frames {
		frames[i][0] = int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		frames[i][1] = int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
	}
	return &ScrubStream{frames: frames}
}

// SetRate may be called from any goroutine.
func (s *ScrubStream) SetRate(r float64) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		r = 0
	}
	s.rate.Store(math.Float64bits(r))
}

func (s *ScrubStream) Rate() float64 {
	return math.Float64frombits(s.rate.Load())
}

// Len is the track length in frames.
func (s *ScrubStream) Len() int { return len(s.frames) }

// Read fills p with whole frames. It never returns an error.
func (s *ScrubStream) Read(p []byte) (int, error) {
	n := len(p) / 4 * 4
	rate := s.Rate()
	if rate == 0 || len(s.frames) == 0 {
		clear(p[:n])
		return n, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	total := float64(len(s.frames))
	for i := 0; i < n; i += 4 {
		l, r := s.sample(s.pos)
		binary.LittleEndian.PutUint16(p[i:], uint16(l))
		binary.LittleEndian.PutUint16(p[i+2:], uint16(r))
		s.pos = math.Mod(s.pos+rate, total)
		if s.pos < 0 {
			s.pos += total
		}
		// a residual just below zero rounds up to total when added back
		if s.pos >= total {
			s.pos = 0
		}
	}
	return n, nil
}

// sample interpolates linearly between the two frames around pos.
func (s *ScrubStream) sample(pos float64) (int16, int16) {
	i := int(pos)
	j := (i + 1) % len(s.frames)
	f := pos - float64(i)
	a, b := s.frames[i], s.frames[j]
	l := float64(a[0]) + (float64(b[0])-float64(a[0]))*f
	r := float64(a[1]) + (float64(b[1])-float64(a[1]))*f
	return int16(math.Round(l)), int16(math.Round(r))
}

// Position returns the playhead in frames.
func (s *ScrubStream) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
