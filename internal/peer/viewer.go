package peer

import (
	"encoding/json"
	"log"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/Zoetrope/internal/transport"
)

// Viewer is the monitor's side of the connection. It creates both data
// channels and makes the offer.
type Viewer struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	hostID    string
}

// NewViewer creates a Viewer peer manager for hostID. onState may be nil.
func NewViewer(sig Signaler, hostID string, onState func(webrtc.PeerConnectionState)) (*Viewer, error) {
	pc, err := NewPeerConnection("host "+hostID, onState)
	if err != nil {
		return nil, err
	}
	v := &Viewer{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(),
		hostID:    hostID,
	}

	// Preview frames are only useful while fresh: no ordering, no retransmits.
	previewOrdered := false
	previewMaxRetransmits := uint16(0)
	previewDC, err := pc.CreateDataChannel(transport.LabelPreview, &webrtc.DataChannelInit{
		Ordered:        &previewOrdered,
		MaxRetransmits: &previewMaxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	telemetryOrdered := true
	telemetryDC, err := pc.CreateDataChannel(transport.LabelTelemetry, &webrtc.DataChannelInit{
		Ordered: &telemetryOrdered,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	for _, dc := range []*webrtc.DataChannel{previewDC, telemetryDC} {
		dc := dc
		dc.OnOpen(func() { log.Printf("peer: %s data channel open", dc.Label()) })
		v.transport.Attach(dc)
	}

	trickle(pc, sig, hostID)
	return v, nil
}

// Transport returns the DataChannelTransport.
func (v *Viewer) Transport() *transport.DataChannelTransport {
	return v.transport
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return v.sig.SendOffer(v.hostID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return v.pc.SetRemoteDescription(answer)
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	return addICECandidate(v.pc, payload)
}

// Close shuts down the peer connection.
func (v *Viewer) Close() {
	if v.pc != nil {
		v.pc.Close()
	}
}
