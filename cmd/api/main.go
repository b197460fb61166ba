package main

import (
	"flag"
	"log"

	"github.com/SoraGate-io/soragate/internal/api"
	"github.com/SoraGate-io/soragate/internal/config"
	"github.com/SoraGate-io/soragate/internal/database"
)

func main() {
	configPath := flag.String("config", "app.yml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	app, err := api.NewApi(*cfg, store, nil)
	if err != nil {
		log.Fatalf("Failed to initialize API: %v", err)
	}

	app.Serve()
}
