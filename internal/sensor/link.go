package sensor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/junsooki/Zoetrope/internal/rotation"
)

// Options configure a Link. Zero fields take the package defaults.
type Options struct {
	NameFilter     string
	Characteristic string
	Settle         time.Duration
	Backoff        Backoff
	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to rotation.ConnectionState)
}

// Link runs the discover, connect and subscribe cycle and is the only writer
// of its rotation.Signal.
type Link struct {
	t    Transport
	w    *rotation.Writer
	opts Options

	failures int
}

func NewLink(t Transport, w *rotation.Writer, opts Options) *Link {
	if opts.NameFilter == "" {
		opts.NameFilter = NameFilter
	}
	if opts.Characteristic == "" {
		opts.Characteristic = NotifyCharacteristic
	}
	if opts.Settle <= 0 {
		opts.Settle = SettleDelay
	}
	return &Link{t: t, w: w, opts: opts}
}

// Run cycles until ctx is done or the sensor refuses the subscription. It
// returns ctx.Err() on cancellation and an ErrSubscribe error otherwise; in
// the latter case the signal stays at its last value for the session.
func (l *Link) Run(ctx context.Context) error {
	defer l.setState(rotation.Disconnected)
	for {
		err := l.cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrSubscribe) {
			log.Printf("sensor: %v; rotation disabled", err)
			return err
		}
		if err != nil {
			log.Printf("sensor: %v", err)
		}
		if err := l.wait(ctx, l.opts.Backoff.Delay(l.failures)); err != nil {
			return err
		}
	}
}

// cycle runs one pass of the state machine. It returns nil after a connection
// that reached Subscribed and was then lost.
func (l *Link) cycle(ctx context.Context) error {
	l.setState(rotation.Scanning)
	log.Printf("sensor: scanning for %q", l.opts.NameFilter)
	ads, err := l.t.Scan(ctx, l.opts.Settle)
	if err != nil {
		l.failures++
		// a failing adapter returns at once; hold for the settle delay so the
		// loop does not spin on it
		l.wait(ctx, l.opts.Settle)
		return fmt.Errorf("scan: %w", err)
	}
	adv, ok := l.match(ads)
	if !ok {
		l.failures++
		return fmt.Errorf("%w after %v (%d peripherals)", ErrSensorNotFound, l.opts.Settle, len(ads))
	}

	log.Printf("sensor: found %q at %s", adv.Name, adv.Address)
	l.setState(rotation.Connecting)
	conn, err := l.t.Connect(ctx, adv)
	if err != nil {
		l.failures++
		l.setState(rotation.Scanning)
		return fmt.Errorf("connect %s: %w", adv.Address, err)
	}

	err = conn.Subscribe(l.opts.Characteristic, func(p []byte) {
		l.w.Publish(rotation.DecodePayload(p))
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %s: %v", ErrSubscribe, l.opts.Characteristic, err)
	}
	l.failures = 0
	l.setState(rotation.Subscribed)

	select {
	case <-conn.Lost():
		conn.Close()
		l.setState(rotation.Disconnected)
		log.Printf("sensor: %v: %s", ErrSensorDisconnected, adv.Address)
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

func (l *Link) match(ads []Advertisement) (Advertisement, bool) {
	for _, a := range ads {
		if strings.Contains(a.Name, l.opts.NameFilter) {
			return a, true
		}
	}
	return Advertisement{}, false
}

func (l *Link) setState(to rotation.ConnectionState) {
	from := l.w.Signal().State()
	if !l.w.SetState(to) {
		return
	}
	log.Printf("sensor: %v -> %v", from, to)
	if l.opts.OnTransition != nil {
		l.opts.OnTransition(from, to)
	}
}

func (l *Link) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
