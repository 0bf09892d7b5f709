package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdrtools/heatwave/cmd/heatwave/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var (
		configPath string
		simulated  bool
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.BoolVar(&simulated, "sim", false, "Run against a synthetic signal source")
	flag.Parse()

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	if simulated {
		config.Device.Simulated = true
	}
	if err = logLevel.UnmarshalText([]byte(config.Settings.LogLevel)); err != nil {
		logLevel.Set(slog.LevelInfo)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
