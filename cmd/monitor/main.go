package main

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/Zoetrope/internal/config"
	"github.com/junsooki/Zoetrope/internal/decoder"
	"github.com/junsooki/Zoetrope/internal/display"
	"github.com/junsooki/Zoetrope/internal/monitor"
	"github.com/junsooki/Zoetrope/internal/peer"
	"github.com/junsooki/Zoetrope/internal/signaling"
)

func main() {
	cfg, err := config.ParseMonitorFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log.Printf("Zoetrope Monitor starting")
	log.Printf("  Monitor ID:  %s", cfg.ViewerID)
	log.Printf("  Signaling:   %s", cfg.SignalingURL)
	if cfg.HostID != "" {
		log.Printf("  Target host: %s", cfg.HostID)
	}

	dec := decoder.NewJPEGDecoder()
	view := display.NewViewer()

	var (
		mu     sync.Mutex
		viewer *peer.Viewer
		target string
		sig    *signaling.Client
	)

	connect := func(hostID string) {
		mu.Lock()
		defer mu.Unlock()
		if viewer != nil {
			return
		}
		v, err := peer.NewViewer(sig, hostID, func(s webrtc.PeerConnectionState) {
			view.SetStatus("host " + hostID + ": " + s.String())
		})
		if err != nil {
			log.Printf("create viewer peer: %v", err)
			return
		}
		v.Transport().OnPreview(func(data []byte) {
			img, err := dec.DecodeRGBA(data)
			if err != nil {
				return
			}
			view.SetFrame(img)
		})
		v.Transport().OnTelemetry(func(data []byte) {
			var t monitor.Telemetry
			if err := json.Unmarshal(data, &t); err != nil {
				log.Printf("telemetry: %v", err)
				return
			}
			view.SetTelemetry(t)
		})
		if err := v.Connect(); err != nil {
			log.Printf("viewer connect: %v", err)
			v.Close()
			return
		}
		viewer, target = v, hostID
		view.SetStatus("connecting to " + hostID + "...")
	}

	sig = signaling.NewClient(cfg.SignalingURL, cfg.ViewerID, signaling.ClientTypeViewer, "", signaling.Handler{
		OnRegistered: func(id string) {
			log.Printf("Registered with signaling server as %s", id)
			if cfg.HostID != "" {
				connect(cfg.HostID)
				return
			}
			view.SetStatus("waiting for an installation...")
			if err := sig.RequestHostList(); err != nil {
				log.Printf("request host list: %v", err)
			}
		},
		OnHostsUpdated: func(hosts []signaling.HostInfo) {
			for _, h := range hosts {
				if !h.Online {
					continue
				}
				if cfg.HostID == "" || h.ID == cfg.HostID {
					connect(h.ID)
					return
				}
			}
		},
		OnHostDisconnected: func(hostID string) {
			mu.Lock()
			defer mu.Unlock()
			if viewer == nil || hostID != target {
				return
			}
			viewer.Close()
			viewer, target = nil, ""
			view.SetStatus("installation " + hostID + " went away")
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			if viewer != nil && from == target {
				if err := viewer.HandleAnswer(payload); err != nil {
					log.Printf("handle answer: %v", err)
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			if viewer != nil && from == target {
				if err := viewer.HandleICECandidate(payload); err != nil {
					log.Printf("handle ICE candidate: %v", err)
				}
			}
		},
		OnError: func(msg string) {
			log.Printf("signaling error: %s", msg)
		},
	})

	if err := sig.Connect(); err != nil {
		log.Fatalf("signaling connect: %v", err)
	}
	defer sig.Close()

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	if err := view.Run(); err != nil {
		log.Fatalf("display: %v", err)
	}

	mu.Lock()
	if viewer != nil {
		viewer.Close()
	}
	mu.Unlock()
}
