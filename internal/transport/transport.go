// Package transport carries preview frames and telemetry over WebRTC data
// channels.
package transport

// Channel labels. The monitor opens both; the installation sends on them.
const (
	LabelPreview   = "preview"
	LabelTelemetry = "telemetry"
)

// PreviewSender sends encoded preview frames.
type PreviewSender interface {
	SendPreview(data []byte) error
}

// PreviewReceiver receives encoded preview frames.
type PreviewReceiver interface {
	OnPreview(callback func(data []byte))
}

// TelemetrySender sends serialized telemetry records.
type TelemetrySender interface {
	SendTelemetry(data []byte) error
}

// TelemetryReceiver receives serialized telemetry records.
type TelemetryReceiver interface {
	OnTelemetry(callback func(data []byte))
}
