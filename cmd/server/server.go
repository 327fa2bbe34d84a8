package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/steveyiyo/fluvio-host/internal/config"
	h "github.com/steveyiyo/fluvio-host/internal/http"
	"github.com/steveyiyo/fluvio-host/internal/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFile)
	r := h.NewRouter(cfg, log)
	log.Info("widget host listening", "port", cfg.Port, "providers", cfg.Providers)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
