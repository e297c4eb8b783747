package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/junsooki/Zoetrope/internal/rotation"
)

type fakeConn struct {
	mu     sync.Mutex
	notify func([]byte)
	subErr error

	lost      chan struct{}
	lostOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{lost: make(chan struct{}), closed: make(chan struct{})}
}

func (c *fakeConn) Subscribe(_ string, fn func([]byte)) error {
	if c.subErr != nil {
		return c.subErr
	}
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) send(p []byte) {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	fn(p)
}

func (c *fakeConn) drop() { c.lostOnce.Do(func() { close(c.lost) }) }

func (c *fakeConn) Lost() <-chan struct{} { return c.lost }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.drop()
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	scans    int
	connects int

	ads        []Advertisement
	scanErr    error
	connectErr func(attempt int) error
	subErr     error

	conns chan *fakeConn
}

func newFakeTransport(ads ...Advertisement) *fakeTransport {
	return &fakeTransport{ads: ads, conns: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Scan(ctx context.Context, settle time.Duration) ([]Advertisement, error) {
	t.mu.Lock()
	t.scans++
	err := t.scanErr
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(settle):
	}
	return append([]Advertisement(nil), t.ads...), nil
}

func (t *fakeTransport) Connect(_ context.Context, adv Advertisement) (Conn, error) {
	t.mu.Lock()
	t.connects++
	n := t.connects
	t.mu.Unlock()
	if t.connectErr != nil {
		if err := t.connectErr(n); err != nil {
			return nil, err
		}
	}
	c := newFakeConn()
	c.subErr = t.subErr
	t.conns <- c
	return c, nil
}

func (t *fakeTransport) scanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans
}

// transitions records state changes in order.
type transitions struct {
	mu  sync.Mutex
	got [][2]rotation.ConnectionState
}

func (r *transitions) record(from, to rotation.ConnectionState) {
	r.mu.Lock()
	r.got = append(r.got, [2]rotation.ConnectionState{from, to})
	r.mu.Unlock()
}

func (r *transitions) list() [][2]rotation.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]rotation.ConnectionState(nil), r.got...)
}

type runningLink struct {
	sig    *rotation.Signal
	trans  *transitions
	cancel context.CancelFunc
	errCh  chan error
}

func startLink(t *testing.T, tr Transport, opts Options) *runningLink {
	t.Helper()
	sig, w := rotation.NewSignal()
	rec := &transitions{}
	opts.OnTransition = rec.record
	if opts.Settle == 0 {
		opts.Settle = time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &runningLink{sig: sig, trans: rec, cancel: cancel, errCh: make(chan error, 1)}
	go func() { r.errCh <- NewLink(tr, w, opts).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.errCh:
		case <-time.After(2 * time.Second):
			t.Error("link did not stop")
		}
	})
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextConn(t *testing.T, tr *fakeTransport) *fakeConn {
	t.Helper()
	select {
	case c := <-tr.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection made")
		return nil
	}
}

var errRadio = errors.New("radio off")
