package peer

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
)

// mailbox records what a peer asked the signaling client to send.
type mailbox struct {
	mu      sync.Mutex
	offers  []json.RawMessage
	answers []json.RawMessage
	targets []string
}

func (m *mailbox) SendOffer(target string, p json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers = append(m.offers, p)
	m.targets = append(m.targets, target)
	return nil
}

func (m *mailbox) SendAnswer(target string, p json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, p)
	m.targets = append(m.targets, target)
	return nil
}

func (m *mailbox) SendICECandidate(string, json.RawMessage) error { return nil }

func TestViewerOfferSessionAnswer(t *testing.T) {
	viewerBox, hostBox := &mailbox{}, &mailbox{}

	v, err := NewViewer(viewerBox, "zoetrope-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	s, err := NewSession(hostBox, "monitor-1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := v.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(viewerBox.offers) != 1 || viewerBox.targets[0] != "zoetrope-1" {
		t.Fatalf("viewer sent %d offers to %v", len(viewerBox.offers), viewerBox.targets)
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(viewerBox.offers[0], &offer); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(offer.SDP, "m=application") {
		t.Error("offer carries no data channel section")
	}

	if err := s.HandleOffer(viewerBox.offers[0]); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if len(hostBox.answers) != 1 || hostBox.targets[0] != "monitor-1" {
		t.Fatalf("session sent %d answers to %v", len(hostBox.answers), hostBox.targets)
	}
	if err := v.HandleAnswer(hostBox.answers[0]); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
}

func TestSessionRejectsGarbageOffer(t *testing.T) {
	s, err := NewSession(&mailbox{}, "monitor-1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.HandleOffer(json.RawMessage(`not json`)); err == nil {
		t.Error("HandleOffer accepted garbage")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s, err := NewSession(&mailbox{}, "monitor-1")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after Close")
	}
}
