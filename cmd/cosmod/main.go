package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cosmo-os/cosmo/common/environment"
	"github.com/cosmo-os/cosmo/common/version"
	"github.com/cosmo-os/cosmo/internal/cosmo/app"
	"github.com/cosmo-os/cosmo/internal/cosmo/config"
)

func main() {
	fmt.Printf("Cosmo %s\n\n", version.Info())

	cfg, err := config.Load(environment.StringOr("COSMO_CONFIG", "cosmo.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	cosmo, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Cosmo: %v\n", err)
		os.Exit(1)
	}
	defer cosmo.Stop()

	if err := cosmo.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Cosmo: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
