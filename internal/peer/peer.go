// Package peer sets up the WebRTC connection between an installation and a
// monitor.
package peer

import (
	"encoding/json"
	"log"

	"github.com/pion/webrtc/v4"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// Signaler is the part of the signaling client a peer needs.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

// NewPeerConnection creates a configured PeerConnection. onState may be nil.
func NewPeerConnection(label string, onState func(webrtc.PeerConnectionState)) (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{
		ICEServers: ICEServers,
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("peer: %s connection state: %s", label, state.String())
		if onState != nil {
			onState(state)
		}
	})
	return pc, nil
}

// trickle sends each local ICE candidate to target.
func trickle(pc *webrtc.PeerConnection, sig Signaler, target string) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Printf("peer: marshal ICE candidate: %v", err)
			return
		}
		_ = sig.SendICECandidate(target, data)
	})
}

func addICECandidate(pc *webrtc.PeerConnection, payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return pc.AddICECandidate(candidate)
}

// ended reports whether a connection in state s will not come back.
func ended(s webrtc.PeerConnectionState) bool {
	return s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed
}
