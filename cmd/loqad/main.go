package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-keywords/internal/config"
	"github.com/loqalabs/loqa-keywords/internal/logging"
	"github.com/loqalabs/loqa-keywords/internal/runtime"
	"github.com/loqalabs/loqa-keywords/internal/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "loqa.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Full("loqad"))
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.NewJSON(os.Stderr, "info").Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.NewJSON(os.Stdout, cfg.Telemetry.LogLevel).With(
		slog.String("runtime", cfg.RuntimeName),
		slog.String("environment", cfg.Environment))

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
