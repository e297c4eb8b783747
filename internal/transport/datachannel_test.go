package transport

import (
	"errors"
	"testing"
)

func TestSendWithoutChannels(t *testing.T) {
	tr := NewDataChannelTransport()
	if err := tr.SendPreview([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendPreview() = %v, want ErrNotOpen", err)
	}
	if err := tr.SendTelemetry([]byte("{}")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendTelemetry() = %v, want ErrNotOpen", err)
	}
	if tr.Ready() {
		t.Error("Ready() with no channels")
	}
}

var (
	_ PreviewSender     = (*DataChannelTransport)(nil)
	_ PreviewReceiver   = (*DataChannelTransport)(nil)
	_ TelemetrySender   = (*DataChannelTransport)(nil)
	_ TelemetryReceiver = (*DataChannelTransport)(nil)
)
