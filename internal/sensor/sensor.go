// Package sensor finds the crank sensor, keeps a connection to it and feeds
// its notifications into a rotation.Signal.
package sensor

import (
	"context"
	"errors"
	"time"
)

const (
	// NameFilter is the substring the crank advertises in its local name.
	NameFilter = "Arduino"
	// NotifyCharacteristic carries one rotation byte per notification.
	NotifyCharacteristic = "13012f00-f8c3-4f4a-a8f4-15cd926da146"
	// SettleDelay is how long a scan listens before matching names.
	SettleDelay = 2 * time.Second
)

var (
	ErrSensorNotFound     = errors.New("no matching sensor found")
	ErrSensorDisconnected = errors.New("sensor disconnected")
	ErrSubscribe          = errors.New("cannot subscribe to sensor notifications")
)

// Advertisement is one peripheral seen during a scan.
type Advertisement struct {
	Name    string
	Address string
}

// Transport is the radio (or wire) the crank is reached over.
type Transport interface {
	// Scan listens for about settle and returns what it saw.
	Scan(ctx context.Context, settle time.Duration) ([]Advertisement, error)
	Connect(ctx context.Context, adv Advertisement) (Conn, error)
}

// Conn is an open connection to one sensor.
type Conn interface {
	// Subscribe calls fn with every notification payload on the named
	// characteristic. fn runs on the transport's goroutine and must not block.
	Subscribe(characteristic string, fn func(payload []byte)) error
	// Lost is closed once the peripheral is gone.
	Lost() <-chan struct{}
	Close() error
}
