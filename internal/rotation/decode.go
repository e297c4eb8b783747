// Package rotation holds the decoded crank signal shared between the sensor
// link and the tick loop.
package rotation

// MaxDelta is the largest magnitude Decode can return.
const MaxDelta = 127

// Decode converts one sensor byte from the crank's signed-magnitude encoding.
// Bytes below 128 are positive rates; 129..255 count up from -126 to 0.
// 128 decodes to 0, the crank's reading at rest.
func Decode(v byte) int8 {
	switch {
	case v < 128:
		return int8(v)
	case v == 128:
		return 0
	default:
		return -int8(255 - v)
	}
}

// DecodePayload decodes the first byte of a notification. An empty payload
// reads as 0.
func DecodePayload(p []byte) int8 {
	if len(p) == 0 {
		return 0
	}
	return Decode(p[0])
}
