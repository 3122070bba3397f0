package replay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/nocaptcha/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0o600
)

// SetupLogging initializes the global logger in format, writing to stdout
// and, when logFile is set, to that file as well. The returned closer
// releases the file.
func SetupLogging(logFile string, format logger.Format) (io.Closer, error) {
	if logFile == "" {
		if err := logger.InitWith(os.Stdout, format); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), format); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `nocaptcha replay
================

Replays recorded or synthetic interaction sessions through capture, feature
extraction and aggregation, and submits the payloads to a collector.

Usage:
  go run ./cmd/replay [options]

Options:
  -endpoint string
        Collector submit endpoint (default from config endpoint_url)
  -sessions int
        Number of synthetic sessions to generate (default 20)
  -profile string
        human, bot or mixed (default "mixed")
  -seed uint
        Generator seed (default 1)
  -workers int
        Number of concurrent replay workers (default CPU cores)
  -recording string
        Replay sessions from this JSON file instead of generating
  -output string
        Save the replayed sessions to this JSON file
  -offline
        Use fixed ip and geolocation instead of the lookup services
  -skip-health
        Do not probe the collector's /healthz first
  -log string
        Also write logs to this file
  -help
        Show this help message

Configuration defaults come from NOCAPTCHA_* environment variables, a local
.env file, and the YAML file named by NOCAPTCHA_CONFIG.

Examples:
  # Replay a mixed batch against a local collector
  go run ./cmd/replay -sessions 100

  # Save a bot batch for later, without network lookups
  go run ./cmd/replay -profile bot -offline -output bots.json

  # Replay a saved batch
  go run ./cmd/replay -recording bots.json -offline
`)
}
