package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/junsooki/Zoetrope/internal/app"
	"github.com/junsooki/Zoetrope/internal/capture"
	"github.com/junsooki/Zoetrope/internal/config"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Usage of zoetrope:\n%s", config.Usage())
		return
	}
	if err != nil {
		log.Fatalf("zoetrope: %v", err)
	}

	if cfg.Camera.ListCameras {
		devs, err := capture.ListDevices()
		if err != nil {
			log.Fatalf("list cameras: %v", err)
		}
		if len(devs) == 0 {
			fmt.Println("no cameras found")
		}
		for _, d := range devs {
			fmt.Printf("%d\t%s\t%s\n", d.Index, d.Path, d.Name)
		}
		return
	}

	log.Printf("Zoetrope starting")
	log.Printf("  Camera:    %s %dx%d@%d %s", cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS, cfg.Camera.Format)
	log.Printf("  Crank:     %s (threshold %d, %d slices)", cfg.Sensor.Transport, cfg.Sensor.Threshold, cfg.Sensor.Slices)
	if cfg.Audio.Track != "" {
		log.Printf("  Audio:     %s", cfg.Audio.Track)
	}
	if cfg.Monitor.SignalingURL != "" {
		log.Printf("  Signaling: %s", cfg.Monitor.SignalingURL)
	}
	if cfg.MQTT.Broker != "" {
		log.Printf("  MQTT:      %s", cfg.MQTT.Broker)
	}

	if err := app.Run(cfg); err != nil {
		log.Fatalf("zoetrope: %v", err)
	}
}
