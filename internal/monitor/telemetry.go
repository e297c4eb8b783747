// Package monitor publishes what the installation is doing: a per-tick
// telemetry record, sent to remote viewers and to an MQTT broker.
package monitor

import (
	"sync"
	"time"

	"github.com/junsooki/Zoetrope/internal/rotation"
)

// Telemetry is one tick's view of the crank, the animation and the camera.
type Telemetry struct {
	State  rotation.ConnectionState `json:"state"`
	Delta  int8                     `json:"delta"`
	Ratio  float64                  `json:"ratio"`
	Step   float64                  `json:"step"`
	Rate   float64                  `json:"rate"`
	Angle  float64                  `json:"angle"`
	Volume float64                  `json:"volume"`
	Frames uint64                   `json:"frames"`
	Drops  uint64                   `json:"drops"`
	Time   time.Time                `json:"time"`
}

// Board is a single-slot mailbox holding the newest Telemetry. The tick loop
// writes it; publishers read at their own pace.
type Board struct {
	mu  sync.Mutex
	t   Telemetry
	seq uint64
}

func NewBoard() *Board { return &Board{} }

func (b *Board) Publish(t Telemetry) {
	b.mu.Lock()
	b.t = t
	b.seq++
	b.mu.Unlock()
}

// Latest returns the newest record and a counter that changes with every
// Publish. seq is 0 until the first Publish.
func (b *Board) Latest() (t Telemetry, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.t, b.seq
}
