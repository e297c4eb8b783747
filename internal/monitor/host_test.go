package monitor

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/junsooki/Zoetrope/internal/peer"
	"github.com/junsooki/Zoetrope/internal/signaling"
)

func TestHostAnswersViewerOffer(t *testing.T) {
	srv := httptest.NewServer(signaling.NewServer())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	hosts := make(chan []signaling.HostInfo, 8)
	answers := make(chan json.RawMessage, 1)
	registered := make(chan string, 1)
	viewerSig := signaling.NewClient(url, "monitor-1", signaling.ClientTypeViewer, "", signaling.Handler{
		OnRegistered:   func(id string) { registered <- id },
		OnHostsUpdated: func(h []signaling.HostInfo) { hosts <- h },
		OnAnswer:       func(_ string, p json.RawMessage) { answers <- p },
	})
	if err := viewerSig.Connect(); err != nil {
		t.Fatal(err)
	}
	defer viewerSig.Close()
	<-registered

	host := NewHost(HostOptions{SignalingURL: url, ID: "zoetrope-1", Name: "hall"}, NewBoard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case list := <-hosts:
		if len(list) != 1 || list[0].ID != "zoetrope-1" || list[0].Name != "hall" {
			t.Fatalf("hosts = %+v", list)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("host never registered")
	}

	v, err := peer.NewViewer(viewerSig, "zoetrope-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if err := v.Connect(); err != nil {
		t.Fatal(err)
	}

	select {
	case a := <-answers:
		if err := v.HandleAnswer(a); err != nil {
			t.Fatalf("HandleAnswer: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no answer from host")
	}
	if n := host.Sessions(); n != 1 {
		t.Errorf("host has %d sessions, want 1", n)
	}
}

func TestBoardLatest(t *testing.T) {
	b := NewBoard()
	if _, seq := b.Latest(); seq != 0 {
		t.Fatalf("empty board seq = %d", seq)
	}
	b.Publish(Telemetry{Delta: 1})
	b.Publish(Telemetry{Delta: 2})
	got, seq := b.Latest()
	if got.Delta != 2 || seq != 2 {
		t.Errorf("Latest() = %+v, %d", got, seq)
	}
}
