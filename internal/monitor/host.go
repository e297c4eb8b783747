package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/Zoetrope/internal/encoder"
	"github.com/junsooki/Zoetrope/internal/framebuf"
	"github.com/junsooki/Zoetrope/internal/peer"
	"github.com/junsooki/Zoetrope/internal/signaling"
	"github.com/junsooki/Zoetrope/internal/transport"
)

// HostOptions configure the installation's side of the remote monitor.
type HostOptions struct {
	SignalingURL string
	ID           string // a random UUID when empty
	Name         string
	PreviewFPS   int
	TelemetryHz  int
	Quality      int
	// MaxMessage bounds one preview message; browsers drop data channel
	// messages above 64 KiB.
	MaxMessage int
}

// Host registers the installation with the signaling server and streams the
// preview and telemetry to every monitor that connects.
type Host struct {
	opts    HostOptions
	board   *Board
	preview *framebuf.Buffer
	enc     *encoder.JPEGEncoder

	mu       sync.Mutex
	sessions map[string]*peer.Session
}

func NewHost(opts HostOptions, board *Board, preview *framebuf.Buffer) *Host {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.PreviewFPS <= 0 {
		opts.PreviewFPS = 10
	}
	if opts.TelemetryHz <= 0 {
		opts.TelemetryHz = 10
	}
	if opts.Quality <= 0 {
		opts.Quality = 70
	}
	if opts.MaxMessage <= 0 {
		opts.MaxMessage = 60 * 1024
	}
	return &Host{
		opts:     opts,
		board:    board,
		preview:  preview,
		enc:      encoder.NewJPEGEncoder(opts.Quality, 0, opts.MaxMessage),
		sessions: make(map[string]*peer.Session),
	}
}

// ID is the host ID monitors connect to.
func (h *Host) ID() string { return h.opts.ID }

// Run keeps a signaling connection up and streams until ctx is done. A lost
// signaling server is redialled with backoff; open sessions keep streaming.
func (h *Host) Run(ctx context.Context) error {
	go h.stream(ctx)
	defer h.closeAll()

	delay := time.Second
	for {
		var client *signaling.Client
		// handlers only fire after Connect, by which time client is set
		client = signaling.NewClient(h.opts.SignalingURL, h.opts.ID, signaling.ClientTypeHost, h.opts.Name,
			h.handler(func() peer.Signaler { return client }))
		if err := client.Connect(); err != nil {
			log.Printf("monitor: %v; retrying in %v", err, delay)
		} else {
			log.Printf("monitor: registered as host %s", h.opts.ID)
			delay = time.Second
			select {
			case <-client.Done():
				log.Printf("monitor: signaling connection lost")
			case <-ctx.Done():
				client.Close()
				return ctx.Err()
			}
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, 30*time.Second)
	}
}

func (h *Host) handler(sig func() peer.Signaler) signaling.Handler {
	return signaling.Handler{
		OnOffer: func(from string, payload json.RawMessage) {
			if err := h.accept(sig(), from, payload); err != nil {
				log.Printf("monitor: offer from %s: %v", from, err)
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			h.mu.Lock()
			s := h.sessions[from]
			h.mu.Unlock()
			if s == nil {
				return
			}
			if err := s.HandleICECandidate(payload); err != nil {
				log.Printf("monitor: ICE candidate from %s: %v", from, err)
			}
		},
		OnError: func(msg string) {
			log.Printf("monitor: signaling error: %s", msg)
		},
	}
}

// accept starts a session for a monitor's offer, replacing any earlier one
// from the same monitor.
func (h *Host) accept(sig peer.Signaler, from string, offer json.RawMessage) error {
	s, err := peer.NewSession(sig, from)
	if err != nil {
		return err
	}
	h.mu.Lock()
	old := h.sessions[from]
	h.sessions[from] = s
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go func() {
		<-s.Done()
		h.mu.Lock()
		if h.sessions[from] == s {
			delete(h.sessions, from)
		}
		h.mu.Unlock()
		log.Printf("monitor: viewer %s gone", from)
	}()

	if err := s.HandleOffer(offer); err != nil {
		s.Close()
		return err
	}
	log.Printf("monitor: viewer %s connecting", from)
	return nil
}

func (h *Host) ready() []*transport.DataChannelTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*transport.DataChannelTransport
	for _, s := range h.sessions {
		if tr := s.Transport(); tr.Ready() {
			out = append(out, tr)
		}
	}
	return out
}

// Sessions is the number of connected monitors.
func (h *Host) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Host) closeAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*peer.Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// stream sends preview frames and telemetry to ready sessions.
func (h *Host) stream(ctx context.Context) {
	previewTick := time.NewTicker(time.Second / time.Duration(h.opts.PreviewFPS))
	defer previewTick.Stop()
	telTick := time.NewTicker(time.Second / time.Duration(h.opts.TelemetryHz))
	defer telTick.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-previewTick.C:
			h.sendPreview()
		case <-telTick.C:
			t, seq := h.board.Latest()
			if seq == 0 || seq == lastSeq {
				continue
			}
			lastSeq = seq
			data, err := json.Marshal(t)
			if err != nil {
				continue
			}
			for _, tr := range h.ready() {
				if err := tr.SendTelemetry(data); err != nil && !errors.Is(err, transport.ErrNotOpen) {
					log.Printf("monitor: send telemetry: %v", err)
				}
			}
		}
	}
}

func (h *Host) sendPreview() {
	if h.preview == nil {
		return
	}
	f, ok := h.preview.TakeLatest()
	if !ok {
		return
	}
	defer h.preview.Release(f)

	targets := h.ready()
	if len(targets) == 0 {
		return
	}
	data, err := h.enc.Encode(f.Image)
	if err != nil {
		log.Printf("monitor: encode preview: %v", err)
		return
	}
	for _, tr := range targets {
		if err := tr.SendPreview(data); err != nil && !errors.Is(err, transport.ErrNotOpen) {
			log.Printf("monitor: send preview: %v", err)
		}
	}
}
