package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/okian/nocaptcha/internal/config"
	"github.com/okian/nocaptcha/internal/replay"
	"github.com/okian/nocaptcha/pkg/logger"
)

// Default flag values.
const (
	defaultSessions = 20
	defaultSeed     = 1
)

func main() {
	var (
		endpoint   = flag.String("endpoint", "", "Collector submit endpoint (default from config)")
		sessions   = flag.Int("sessions", defaultSessions, "Number of synthetic sessions to generate")
		profile    = flag.String("profile", string(replay.ProfileMixed), "human, bot or mixed")
		seed       = flag.Uint64("seed", defaultSeed, "Generator seed")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of concurrent replay workers")
		recording  = flag.String("recording", "", "Replay sessions from this JSON file")
		output     = flag.String("output", "", "Save the replayed sessions to this JSON file")
		offline    = flag.Bool("offline", false, "Use fixed ip and geolocation")
		skipHealth = flag.Bool("skip-health", false, "Do not probe the collector first")
		logFile    = flag.String("log", "", "Also write logs to this file")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp(os.Stdout)
		return
	}

	// A local .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	closer, err := replay.SetupLogging(*logFile, logger.Format(cfg.LogFormat))
	if err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()
	_ = logger.SetLevelString(cfg.LogLevel)

	rc := &replay.Config{
		EndpointURL:   cfg.EndpointURL,
		IPLookupURL:   cfg.IPLookupURL,
		GeoLookupURL:  cfg.GeoLookupURL,
		Sessions:      *sessions,
		Profile:       replay.Profile(*profile),
		Seed:          *seed,
		Workers:       *workers,
		RecordingFile: *recording,
		OutputFile:    *output,
		Offline:       *offline,
		LookupTimeout: cfg.LookupTimeout(),
		SubmitTimeout: cfg.SubmitTimeout(),
		Capacity:      cfg.BufferCapacity,
		Forecast:      cfg.PredictiveModel == config.PredictiveForecast,
		SkipHealth:    *skipHealth,
	}
	if *endpoint != "" {
		rc.EndpointURL = *endpoint
	}

	if _, err := replay.Run(ctx, rc); err != nil {
		logger.Get().Error(ctx, "replay failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
