// Command verifier runs the behavioral verification service.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/behavior-verify-gateway/internal/pkg/config"
	"github.com/tjfontaine/behavior-verify-gateway/internal/telemetry"
	"github.com/tjfontaine/behavior-verify-gateway/pkg/verifier"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("CONFIG_PATH", config.DefaultPath), "path to config.yaml")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	// Tracing is set up before the verifier so spans from startup are kept.
	bootCfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	shutdownTracer, err := telemetry.InitTracer(bootCfg.Tracing, os.Stderr, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	v, err := verifier.New(
		verifier.WithLogger(logger),
		verifier.WithFileConfig(*configPath),
	)
	if err != nil {
		log.Fatalf("Failed to create verifier: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := v.Start(ctx); err != nil {
		log.Fatalf("Failed to start verifier: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping verifier...")
	case err := <-v.Done():
		if err != nil {
			logger.Error("supervisor stopped", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := v.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
