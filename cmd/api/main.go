package main

import (
	"context"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/app"
	"github.com/Chitrarthrai/NeoCompliance/internal/config"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	build := obs.SetBuild(version, commit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg, build.Version)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("init api")
	}
	if err := application.Run(); err != nil {
		log.WithError(err).Fatal("api stopped with error")
	}
}
