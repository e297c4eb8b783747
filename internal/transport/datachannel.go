package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrNotOpen is returned when sending on a channel that is missing or not
// open yet.
var ErrNotOpen = errors.New("data channel not open")

// DataChannelTransport implements preview and telemetry transport over two
// WebRTC DataChannels.
type DataChannelTransport struct {
	mu          sync.Mutex
	previewDC   *webrtc.DataChannel
	telemetryDC *webrtc.DataChannel

	onPreview   func(data []byte)
	onTelemetry func(data []byte)
}

func NewDataChannelTransport() *DataChannelTransport {
	return &DataChannelTransport{}
}

// Attach adopts dc by its label. Unknown labels are rejected.
func (t *DataChannelTransport) Attach(dc *webrtc.DataChannel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch dc.Label() {
	case LabelPreview:
		t.previewDC = dc
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if cb := t.previewCallback(); cb != nil {
				cb(msg.Data)
			}
		})
	case LabelTelemetry:
		t.telemetryDC = dc
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if cb := t.telemetryCallback(); cb != nil {
				cb(msg.Data)
			}
		})
	default:
		return fmt.Errorf("unexpected data channel %q", dc.Label())
	}
	return nil
}

func (t *DataChannelTransport) SendPreview(data []byte) error {
	t.mu.Lock()
	dc := t.previewDC
	t.mu.Unlock()
	return send(dc, data)
}

func (t *DataChannelTransport) SendTelemetry(data []byte) error {
	t.mu.Lock()
	dc := t.telemetryDC
	t.mu.Unlock()
	return send(dc, data)
}

func send(dc *webrtc.DataChannel, data []byte) error {
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return dc.Send(data)
}

// Ready reports whether both channels are open.
func (t *DataChannelTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.previewDC != nil && t.previewDC.ReadyState() == webrtc.DataChannelStateOpen &&
		t.telemetryDC != nil && t.telemetryDC.ReadyState() == webrtc.DataChannelStateOpen
}

func (t *DataChannelTransport) OnPreview(cb func(data []byte)) {
	t.mu.Lock()
	t.onPreview = cb
	t.mu.Unlock()
}

func (t *DataChannelTransport) OnTelemetry(cb func(data []byte)) {
	t.mu.Lock()
	t.onTelemetry = cb
	t.mu.Unlock()
}

func (t *DataChannelTransport) previewCallback() func([]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onPreview
}

func (t *DataChannelTransport) telemetryCallback() func([]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onTelemetry
}
