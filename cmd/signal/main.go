package main

import (
	"log"
	"net/http"
	"os"

	"github.com/junsooki/Zoetrope/internal/config"
	"github.com/junsooki/Zoetrope/internal/signaling"
)

func main() {
	cfg, err := config.ParseSignalFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log.Printf("Zoetrope signaling listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, signaling.NewServer()); err != nil {
		log.Fatalf("signal: %v", err)
	}
}
