package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/attitude_streamer/internal/app"
	"github.com/relabs-tech/attitude_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "./attitude_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting attitude-streamer GPS marker (NMEA → annotated events)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunGPSMarker(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
