package sensor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// DefaultSerialDir lists USB serial adapters by their stable names, which
// include the board's product string.
const DefaultSerialDir = "/dev/serial/by-id"

// SerialTransport reaches a crank wired over USB serial. Each byte the board
// writes is one notification.
type SerialTransport struct {
	Dir  string
	Baud uint

	open func(serial.OpenOptions) (io.ReadWriteCloser, error)
}

func NewSerialTransport(baud uint) *SerialTransport {
	return &SerialTransport{Dir: DefaultSerialDir, Baud: baud, open: serial.Open}
}

// Scan waits settle so a board plugged in meanwhile is picked up, then lists
// the serial devices.
func (t *SerialTransport) Scan(ctx context.Context, settle time.Duration) ([]Advertisement, error) {
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	entries, err := os.ReadDir(t.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ads := make([]Advertisement, 0, len(entries))
	for _, e := range entries {
		ads = append(ads, Advertisement{Name: e.Name(), Address: filepath.Join(t.Dir, e.Name())})
	}
	return ads, nil
}

func (t *SerialTransport) Connect(_ context.Context, adv Advertisement) (Conn, error) {
	port, err := t.open(serial.OpenOptions{
		PortName:        adv.Address,
		BaudRate:        t.Baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("sensor: serial port %s open at %d baud", adv.Address, t.Baud)
	return &serialConn{port: port, lost: make(chan struct{})}, nil
}

type serialConn struct {
	port io.ReadWriteCloser

	lost      chan struct{}
	lostOnce  sync.Once
	closeOnce sync.Once
	subOnce   sync.Once
}

// Subscribe starts the read loop. The characteristic has no meaning on a
// serial line; the byte stream is the notification stream.
func (c *serialConn) Subscribe(_ string, fn func([]byte)) error {
	started := false
	c.subOnce.Do(func() {
		started = true
		go c.readLoop(fn)
	})
	if !started {
		return fmt.Errorf("already subscribed")
	}
	return nil
}

func (c *serialConn) readLoop(fn func([]byte)) {
	defer c.markLost()
	buf := make([]byte, 64)
	for {
		n, err := c.port.Read(buf)
		for i := 0; i < n; i++ {
			fn(buf[i : i+1])
		}
		if err != nil {
			return
		}
	}
}

func (c *serialConn) Lost() <-chan struct{} { return c.lost }

func (c *serialConn) markLost() {
	c.lostOnce.Do(func() { close(c.lost) })
}

func (c *serialConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.port.Close()
		c.markLost()
	})
	return err
}
