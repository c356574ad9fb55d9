package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/agenthands/bayesnet/internal/config"
	"github.com/agenthands/bayesnet/internal/logging"
	"github.com/agenthands/bayesnet/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := logging.Configure(nil, cfg.Log); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	srv, err := server.NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	r := srv.SetupRouter()

	log.WithFields(log.Fields{"port": cfg.Server.Port}).Info("Starting server")
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal(err)
	}
}
