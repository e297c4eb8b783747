package sensor

import "time"

// Backoff spaces out discovery cycles that keep failing. The zero value
// disables it, so a failed cycle is retried straight away.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff doubles from 1s up to 30s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second}
}

func (b Backoff) enabled() bool { return b.Initial > 0 }

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if !b.enabled() || attempt < 1 {
		return 0
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
