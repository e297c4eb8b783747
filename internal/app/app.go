// Package app wires the installation together: camera, crank, audio, the
// optional remote feeds and the display loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junsooki/Zoetrope/internal/audio"
	"github.com/junsooki/Zoetrope/internal/config"
	"github.com/junsooki/Zoetrope/internal/display"
	"github.com/junsooki/Zoetrope/internal/framebuf"
	"github.com/junsooki/Zoetrope/internal/indicator"
	"github.com/junsooki/Zoetrope/internal/modulator"
	"github.com/junsooki/Zoetrope/internal/monitor"
	"github.com/junsooki/Zoetrope/internal/rotation"
	"github.com/junsooki/Zoetrope/internal/sensor"
)

// Run starts every component and blocks in the display loop until the window
// closes, Escape is pressed or the process is signalled.
func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := framebuf.New()
	board := monitor.NewBoard()
	sig, w := rotation.NewSignal()

	var mask image.Image
	if cfg.Display.Mask != "" {
		m, err := loadImage(cfg.Display.Mask)
		if err != nil {
			return err
		}
		mask = m
	}

	var sink audio.Sink = audio.NewSilent(cfg.Audio.Volume)
	if cfg.Audio.Track != "" {
		p, err := audio.Load(cfg.Audio.Track, cfg.Audio.Volume)
		if err != nil {
			log.Printf("audio: %v; running silent", err)
		} else {
			defer p.Close()
			sink = p
		}
	}

	var wg waitGroup
	defer wg.Wait()
	defer cancel()

	wg.Go("sensor", func() error {
		return sensor.NewLink(newTransport(cfg), w, sensorOptions(cfg)).Run(ctx)
	})

	sup := NewSupervisor(cfg.CaptureOptions(), frames)
	var preview *framebuf.Buffer
	if cfg.Monitor.SignalingURL != "" {
		preview = framebuf.New()
		sup.Preview = preview
		sup.PreviewSize = cfg.Monitor.PreviewSize
		sup.PreviewFPS = cfg.Monitor.PreviewFPS
	}
	capErr := make(chan error, 1)
	wg.Go("capture", func() error {
		err := sup.Run(ctx)
		if err != nil && ctx.Err() == nil {
			capErr <- err
			cancel()
		}
		return err
	})

	if preview != nil {
		host := monitor.NewHost(monitor.HostOptions{
			SignalingURL: cfg.Monitor.SignalingURL,
			ID:           cfg.Monitor.HostID,
			Name:         cfg.Monitor.Name,
			PreviewFPS:   cfg.Monitor.PreviewFPS,
			Quality:      cfg.Monitor.PreviewQuality,
		}, board, preview)
		log.Printf("monitor: host id %s", host.ID())
		wg.Go("monitor", func() error { return host.Run(ctx) })
	}

	if cfg.MQTT.Broker != "" {
		pub := monitor.NewMQTTPublisher(monitor.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.Prefix,
		}, board, sig.Changes())
		if err := pub.Connect(); err != nil {
			log.Printf("monitor: %v; mqtt disabled", err)
		} else {
			wg.Go("mqtt", func() error { return pub.Run(ctx) })
		}
	}

	if cfg.StatusLED != "" {
		led, err := indicator.Open(cfg.StatusLED)
		if err != nil {
			log.Printf("indicator: %v", err)
		} else {
			wg.Go("indicator", func() error { return led.Run(ctx, sig.Changes()) })
		}
	}

	game := display.NewGame(frames, sig, modulator.New(cfg.ModulatorConfig()), sink, board, display.GameOptions{
		Fullscreen: cfg.Display.Fullscreen,
		TPS:        cfg.Display.TPS,
		Mask:       mask,
		Quit:       ctx.Done(),
	})
	err := game.Run()
	cancel()
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	select {
	case err := <-capErr:
		return err
	default:
		return nil
	}
}

func newTransport(cfg *config.Config) sensor.Transport {
	if cfg.Sensor.Transport == "serial" {
		return sensor.NewSerialTransport(cfg.Sensor.SerialBaud)
	}
	return sensor.NewBLETransport()
}

func sensorOptions(cfg *config.Config) sensor.Options {
	var opts sensor.Options
	if cfg.Sensor.Backoff {
		opts.Backoff = sensor.DefaultBackoff()
	}
	return opts
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("mask %s: %w", path, err)
	}
	return img, nil
}

// waitGroup runs named background loops and logs how each one ended.
type waitGroup struct {
	done []chan struct{}
}

func (g *waitGroup) Go(name string, fn func() error) {
	ch := make(chan struct{})
	g.done = append(g.done, ch)
	go func() {
		defer close(ch)
		start := time.Now()
		err := fn()
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			log.Printf("app: %s stopped", name)
		default:
			log.Printf("app: %s stopped after %v: %v", name, time.Since(start).Round(time.Second), err)
		}
	}()
}

// Wait blocks until every loop has returned, giving up after a few seconds
// so a wedged device cannot hold the process open.
func (g *waitGroup) Wait() {
	timeout := time.After(3 * time.Second)
	for _, ch := range g.done {
		select {
		case <-ch:
		case <-timeout:
			log.Printf("app: shutdown timed out")
			return
		}
	}
}
