package audio

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

const SampleRate = 48000

// VolumeStep is how much one key press changes the volume.
const VolumeStep = 0.05

// Sink accepts the per-tick playback rate and the operator's volume.
type Sink interface {
	SetRate(rate float64)
	SetVolume(v float64)
	Volume() float64
}

// Player plays a looped track through ebiten's audio context.
type Player struct {
	stream *ScrubStream
	player *audio.Player
}

// Load decodes an mp3, wav or ogg file and starts it playing, silent until
// the first non-zero rate.
func Load(path string, volume float64) (*Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	pcm, err := decode(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(pcm) < 4 {
		return nil, fmt.Errorf("decode %s: empty track", filepath.Base(path))
	}

	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(SampleRate)
	}
	stream := NewScrubStream(pcm)
	p, err := ctx.NewPlayer(stream)
	if err != nil {
		return nil, fmt.Errorf("audio player: %w", err)
	}
	p.SetBufferSize(50 * time.Millisecond)
	p.SetVolume(clampVolume(volume))
	p.Play()

	secs := float64(stream.Len()) / SampleRate
	log.Printf("audio: %s loaded (%.1fs)", filepath.Base(path), secs)
	return &Player{stream: stream, player: p}, nil
}

func decode(ext string, data []byte) ([]byte, error) {
	var (
		src io.Reader
		err error
	)
	r := bytes.NewReader(data)
	switch strings.ToLower(ext) {
	case ".mp3":
		src, err = mp3.DecodeWithSampleRate(SampleRate, r)
	case ".wav":
		src, err = wav.DecodeWithSampleRate(SampleRate, r)
	case ".ogg":
		src, err = vorbis.DecodeWithSampleRate(SampleRate, r)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(src)
}

func (p *Player) SetRate(rate float64) { p.stream.SetRate(rate) }

func (p *Player) SetVolume(v float64) { p.player.SetVolume(clampVolume(v)) }

func (p *Player) Volume() float64 { return p.player.Volume() }

func (p *Player) Close() error { return p.player.Close() }

func clampVolume(v float64) float64 {
	return max(0, min(1, v))
}

// Silent is the Sink used when no track is configured.
type Silent struct {
	volume float64
}

func NewSilent(volume float64) *Silent { return &Silent{volume: clampVolume(volume)} }

func (*Silent) SetRate(float64)       {}
func (s *Silent) SetVolume(v float64) { s.volume = clampVolume(v) }
func (s *Silent) Volume() float64     { return s.volume }
