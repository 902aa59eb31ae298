// Command botsim submits synthetic human-like and scripted-bot login sessions
// to a running verifier.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/behavior-verify-gateway/internal/submission"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("VERIFIER_URL", "http://localhost:8080"), "verifier base URL")
	count := flag.Int("n", 10, "number of sessions to submit")
	botRatio := flag.Float64("bots", 0.5, "fraction of sessions using the bot profile")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	timeout := flag.Duration("timeout", 10*time.Second, "per-submission timeout including retries")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *count <= 0 || *botRatio < 0 || *botRatio > 1 {
		log.Fatalf("invalid flags: n must be positive and bots in [0,1]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := newGenerator(*seed, logger)
	client := submission.NewClient(*baseURL, submission.WithClientLogger(logger))

	var ok, failed int
	for i := 0; i < *count; i++ {
		if ctx.Err() != nil {
			break
		}

		p := profileHuman
		if gen.faker.Float64Range(0, 1) < *botRatio {
			p = profileBot
		}

		req, err := gen.request(p)
		if err != nil {
			logger.Error("failed to build session", slog.String("profile", string(p)), slog.String("error", err.Error()))
			failed++
			continue
		}

		subCtx, cancel := context.WithTimeout(ctx, *timeout)
		resp, err := client.Submit(subCtx, req)
		cancel()
		if err != nil {
			logger.Error("submission failed",
				slog.String("profile", string(p)),
				slog.String("submission_id", req.SubmissionID),
				slog.String("error", err.Error()))
			failed++
			continue
		}

		ok++
		logger.Info("submitted",
			slog.String("profile", string(p)),
			slog.String("submission_id", resp.SubmissionID),
			slog.String("log_id", resp.LogID),
			slog.Int("events", len(req.UserBehaviorData.Events)))
	}

	logger.Info("done", slog.Int("submitted", ok), slog.Int("failed", failed))
	if failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
