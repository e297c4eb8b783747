package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/Zoetrope/internal/transport"
)

// Session is the installation's side of one monitor connection. The monitor
// offers; the session answers and adopts the monitor's data channels.
type Session struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	viewerID  string

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession prepares an answerer for viewerID.
func NewSession(sig Signaler, viewerID string) (*Session, error) {
	s := &Session{
		sig:       sig,
		transport: transport.NewDataChannelTransport(),
		viewerID:  viewerID,
		done:      make(chan struct{}),
	}
	pc, err := NewPeerConnection("viewer "+viewerID, func(state webrtc.PeerConnectionState) {
		if ended(state) {
			s.Close()
		}
	})
	if err != nil {
		return nil, err
	}
	s.pc = pc

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if err := s.transport.Attach(dc); err != nil {
			dc.Close()
		}
	})
	trickle(pc, sig, viewerID)
	return s, nil
}

// ViewerID is the monitor this session serves.
func (s *Session) ViewerID() string { return s.viewerID }

// Transport returns the DataChannelTransport for sending preview and telemetry.
func (s *Session) Transport() *transport.DataChannelTransport {
	return s.transport
}

// HandleOffer processes the monitor's offer and sends back an answer.
func (s *Session) HandleOffer(payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return s.sig.SendAnswer(s.viewerID, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate.
func (s *Session) HandleICECandidate(payload json.RawMessage) error {
	return addICECandidate(s.pc, payload)
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close shuts down the peer connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		go s.pc.Close()
	})
}
