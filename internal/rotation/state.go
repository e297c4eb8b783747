package rotation

// ConnectionState is the lifecycle of the link to the crank sensor.
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	Scanning
	Connecting
	Subscribed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	}
	return "unknown"
}

// MarshalText lets the state appear by name in JSON telemetry.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText; unknown names read as Disconnected.
func (s *ConnectionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "scanning":
		*s = Scanning
	case "connecting":
		*s = Connecting
	case "subscribed":
		*s = Subscribed
	default:
		*s = Disconnected
	}
	return nil
}
