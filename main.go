package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/rdboundary/config"
	"github.com/pthm-cable/rdboundary/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = use config)")
	steps := flag.Int("steps", 0, "Number of steps (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config and snapshot (empty = use config)")
	logStats := flag.Bool("log-stats", false, "Output window and perf stats via slog")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	s, err := sim.New(config.Cfg(), sim.Options{
		Seed:      *seed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
	})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := s.Run(ctx, *steps)
	stop()

	if err := s.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Info("simulation interrupted", "step", s.StepCount())
			return
		}
		slog.Error("simulation failed", "error", runErr)
		os.Exit(1)
	}
}
