// Package indicator mirrors the crank link state on a GPIO LED.
package indicator

import (
	"context"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/junsooki/Zoetrope/internal/rotation"
)

// BlinkPeriod is one on/off cycle while the link is looking for the crank.
const BlinkPeriod = 500 * time.Millisecond

type outPin interface {
	Out(l gpio.Level) error
}

// LED is lit while the crank is subscribed, blinks while scanning or
// connecting and is dark while disconnected.
type LED struct {
	name string
	pin  outPin
}

// Open initialises periph and claims the named pin, e.g. "GPIO17".
func Open(name string) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("status led: periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("status led: pin %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("status led: %s: %w", name, err)
	}
	log.Printf("indicator: status led on %s", name)
	return &LED{name: name, pin: p}, nil
}

// level is the LED level for state during the given blink phase.
func level(state rotation.ConnectionState, phase bool) gpio.Level {
	switch state {
	case rotation.Subscribed:
		return gpio.High
	case rotation.Scanning, rotation.Connecting:
		return gpio.Level(phase)
	}
	return gpio.Low
}

// Run follows states until ctx is done, then turns the LED off.
func (l *LED) Run(ctx context.Context, states <-chan rotation.ConnectionState) error {
	ticker := time.NewTicker(BlinkPeriod / 2)
	defer ticker.Stop()
	defer l.pin.Out(gpio.Low)

	state := rotation.Disconnected
	phase := false
	cur := gpio.Low
	set := func() {
		want := level(state, phase)
		if want == cur {
			return
		}
		if err := l.pin.Out(want); err != nil {
			log.Printf("indicator: %s: %v", l.name, err)
			return
		}
		cur = want
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state = <-states:
			phase = true
			set()
		case <-ticker.C:
			phase = !phase
			set()
		}
	}
}
