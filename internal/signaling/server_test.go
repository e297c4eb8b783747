package signaling

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type events struct {
	registered chan string
	offers     chan Message
	answers    chan Message
	hosts      chan []HostInfo
	gone       chan string
	errs       chan string
}

func newEvents() *events {
	return &events{
		registered: make(chan string, 4),
		offers:     make(chan Message, 4),
		answers:    make(chan Message, 4),
		hosts:      make(chan []HostInfo, 16),
		gone:       make(chan string, 4),
		errs:       make(chan string, 4),
	}
}

func (e *events) handler() Handler {
	return Handler{
		OnRegistered: func(id string) { e.registered <- id },
		OnOffer: func(from string, p json.RawMessage) {
			e.offers <- Message{From: from, Payload: p}
		},
		OnAnswer: func(from string, p json.RawMessage) {
			e.answers <- Message{From: from, Payload: p}
		},
		OnHostsUpdated:     func(h []HostInfo) { e.hosts <- h },
		OnHostDisconnected: func(id string) { e.gone <- id },
		OnError:            func(msg string) { e.errs <- msg },
	}
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func dial(t *testing.T, srv *httptest.Server, id, kind string, ev *events) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(url, id, kind, id+"-name", ev.handler())
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	t.Cleanup(c.Close)
	if got := recv(t, ev.registered, id+" registration"); got != id {
		t.Fatalf("registered as %q, want %q", got, id)
	}
	return c
}

func TestServerRelaysOfferAndAnswer(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()

	hostEv, viewEv := newEvents(), newEvents()
	host := dial(t, srv, "zoetrope-1", ClientTypeHost, hostEv)
	viewer := dial(t, srv, "monitor-1", ClientTypeViewer, viewEv)

	if err := viewer.RequestHostList(); err != nil {
		t.Fatal(err)
	}
	list := recv(t, viewEv.hosts, "host list")
	if len(list) != 1 || list[0].ID != "zoetrope-1" || list[0].Name != "zoetrope-1-name" {
		t.Fatalf("host list = %+v", list)
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if err := viewer.SendOffer("zoetrope-1", offer); err != nil {
		t.Fatal(err)
	}
	got := recv(t, hostEv.offers, "offer")
	if got.From != "monitor-1" || string(got.Payload) != string(offer) {
		t.Errorf("host got offer %+v", got)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	host.SendAnswer(got.From, answer)
	if a := recv(t, viewEv.answers, "answer"); a.From != "zoetrope-1" {
		t.Errorf("viewer got answer from %q", a.From)
	}
}

func TestServerUnknownTarget(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()
	ev := newEvents()
	c := dial(t, srv, "monitor-1", ClientTypeViewer, ev)
	c.SendOffer("nobody", json.RawMessage(`{}`))
	if msg := recv(t, ev.errs, "error"); !strings.Contains(msg, "nobody") {
		t.Errorf("error = %q", msg)
	}
}

func TestServerAnnouncesHostDeparture(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()

	viewEv := newEvents()
	dial(t, srv, "monitor-1", ClientTypeViewer, viewEv)
	host := dial(t, srv, "zoetrope-1", ClientTypeHost, newEvents())
	if list := recv(t, viewEv.hosts, "hosts-updated on join"); len(list) != 1 {
		t.Fatalf("hosts after join = %+v", list)
	}

	host.Close()
	if id := recv(t, viewEv.gone, "host-disconnected"); id != "zoetrope-1" {
		t.Errorf("disconnected host = %q", id)
	}
	if list := recv(t, viewEv.hosts, "hosts-updated on leave"); len(list) != 0 {
		t.Errorf("hosts after leave = %+v", list)
	}
}

func TestServerAssignsIDWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()
	ev := newEvents()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(url, "", ClientTypeViewer, "", ev.handler())
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if id := recv(t, ev.registered, "registration"); len(id) != 36 {
		t.Errorf("assigned id %q, want a uuid", id)
	}
}
