package sensor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// BLETransport reaches the crank over Bluetooth Low Energy on the default
// adapter.
type BLETransport struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	conns map[string]*bleConn
}

func NewBLETransport() *BLETransport {
	return &BLETransport{
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]bluetooth.Address),
		conns:   make(map[string]*bleConn),
	}
}

func (t *BLETransport) enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("enable bluetooth adapter: %w", err)
			return
		}
		t.adapter.SetConnectHandler(t.onConnectChange)
	})
	return t.enableErr
}

func (t *BLETransport) onConnectChange(dev bluetooth.Device, connected bool) {
	if connected {
		return
	}
	t.mu.Lock()
	c := t.conns[dev.Address.String()]
	t.mu.Unlock()
	if c != nil {
		c.markLost()
	}
}

// Scan listens for settle and returns every peripheral that advertised a name.
func (t *BLETransport) Scan(ctx context.Context, settle time.Duration) ([]Advertisement, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	found := make(map[string]bluetooth.Address)
	names := make(map[string]string)

	done := make(chan struct{})
	defer close(done)
	go func() {
		timer := time.NewTimer(settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		case <-done:
			return
		}
		t.adapter.StopScan()
	}()

	err := t.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		name := r.LocalName()
		if name == "" {
			return
		}
		addr := r.Address.String()
		mu.Lock()
		found[addr] = r.Address
		names[addr] = name
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("ble scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	t.mu.Lock()
	t.seen = found
	t.mu.Unlock()

	ads := make([]Advertisement, 0, len(found))
	for addr, name := range names {
		ads = append(ads, Advertisement{Name: name, Address: addr})
	}
	return ads, nil
}

func (t *BLETransport) Connect(ctx context.Context, adv Advertisement) (Conn, error) {
	t.mu.Lock()
	addr, ok := t.seen[adv.Address]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s was not seen in the last scan", adv.Address)
	}

	dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		dev.Disconnect()
		return nil, ctx.Err()
	}

	c := &bleConn{t: t, dev: dev, addr: adv.Address, lost: make(chan struct{})}
	t.mu.Lock()
	t.conns[adv.Address] = c
	t.mu.Unlock()
	return c, nil
}

type bleConn struct {
	t    *BLETransport
	dev  bluetooth.Device
	addr string

	lost     chan struct{}
	lostOnce sync.Once
	close    sync.Once
}

func (c *bleConn) Subscribe(characteristic string, fn func([]byte)) error {
	uuid, err := bluetooth.ParseUUID(characteristic)
	if err != nil {
		return fmt.Errorf("characteristic %q: %w", characteristic, err)
	}
	services, err := c.dev.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{uuid})
		if err != nil || len(chars) == 0 {
			continue
		}
		log.Printf("sensor: subscribing to %s", characteristic)
		return chars[0].EnableNotifications(fn)
	}
	return errors.New("characteristic not offered by peripheral")
}

func (c *bleConn) Lost() <-chan struct{} { return c.lost }

func (c *bleConn) markLost() {
	c.lostOnce.Do(func() { close(c.lost) })
}

func (c *bleConn) Close() error {
	var err error
	c.close.Do(func() {
		c.t.mu.Lock()
		if c.t.conns[c.addr] == c {
			delete(c.t.conns, c.addr)
		}
		c.t.mu.Unlock()
		err = c.dev.Disconnect()
		c.markLost()
	})
	return err
}
