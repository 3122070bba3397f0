// Package replay drives recorded or synthetic sessions through capture,
// feature extraction and aggregation, and submits the payloads to a
// collector.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/nocaptcha/internal/adapters/lookup"
	"github.com/okian/nocaptcha/internal/adapters/transport"
	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/internal/domain/features"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
)

// Runner configuration constants.
const (
	percentageMultiplier = 100
	drainTimeout         = 30 * time.Second
	healthTimeout        = 5 * time.Second
)

// Offline lookup results.
const (
	offlineIP = "192.0.2.1"
)

var offlineGeo = lookup.Geo{City: "Offline", Region: "Replay", Country: "ZZ"}

// Error constants.
var (
	ErrNoSessions     = errors.New("no sessions to replay")
	ErrUnknownProfile = errors.New("unknown profile")
)

// Run executes a complete replay.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now(), ByProfile: map[Profile]int{}}
	log := logger.Get().Named("replay")

	log.Info(ctx, "starting replay",
		logger.String("endpoint", cfg.EndpointURL),
		logger.Int("sessions", cfg.Sessions),
		logger.String("profile", string(cfg.Profile)),
		logger.Int("workers", cfg.Workers),
		logger.String("recording", cfg.RecordingFile),
		logger.Bool("offline", cfg.Offline),
	)

	// Step 1: Check the collector is up
	if !cfg.SkipHealth {
		if err := checkCollector(ctx, cfg.EndpointURL); err != nil {
			return stats, fmt.Errorf("collector health check failed: %w", err)
		}
	}

	// Step 2: Load or generate sessions
	recs, err := sessions(cfg)
	if err != nil {
		return stats, err
	}
	stats.SessionsLoaded = len(recs)
	for _, r := range recs {
		stats.ByProfile[r.Profile]++
	}

	// Step 3: Save what is replayed
	if cfg.OutputFile != "" {
		if err := SaveRecordings(ctx, cfg.OutputFile, recs); err != nil {
			log.Warn(ctx, "failed to save recordings", logger.Error(err))
		}
	}

	// Step 4: Replay and submit concurrently
	var delivered, failed atomic.Int64
	sub := transport.NewSubmitter(cfg.EndpointURL,
		transport.WithTimeout(cfg.SubmitTimeout),
		transport.WithResultHook(func(_ string, err error) {
			if err != nil {
				failed.Add(1)
				return
			}
			delivered.Add(1)
		}),
	)
	replayAll(ctx, cfg, recs, newLocator(cfg), sub, stats)

	// Step 5: Wait for in-flight submissions
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := sub.Drain(drainCtx); err != nil {
		log.Warn(ctx, "submissions still in flight at exit", logger.Error(err))
	}
	stats.Delivered, stats.DeliveryFailed = delivered.Load(), failed.Load()

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("replay interrupted: %w", err)
	}
	return stats, nil
}

func sessions(cfg *Config) ([]Recording, error) {
	if cfg.RecordingFile != "" {
		recs, err := LoadRecordings(cfg.RecordingFile)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, ErrNoSessions
		}
		return recs, nil
	}
	if cfg.Sessions <= 0 {
		return nil, ErrNoSessions
	}
	switch cfg.Profile {
	case ProfileHuman, ProfileBot, ProfileMixed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, cfg.Profile)
	}
	return NewGenerator(cfg.Seed).Generate(cfg.Sessions, cfg.Profile), nil
}

func newLocator(cfg *Config) aggregate.Locator {
	if cfg.Offline {
		return lookup.NewStaticLocator(offlineIP, offlineGeo)
	}
	return lookup.NewHTTPLocator(lookup.WithIPURL(cfg.IPLookupURL), lookup.WithGeoURL(cfg.GeoLookupURL))
}

// replayAll fans recordings out to cfg.Workers goroutines.
func replayAll(ctx context.Context, cfg *Config, recs []Recording, loc aggregate.Locator, sub *transport.Submitter, stats *Stats) {
	workers := min(max(cfg.Workers, 1), len(recs))
	jobs := make(chan Recording, workers*2)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				p, skipped, err := Session(ctx, cfg, rec, loc)
				var submitErr error
				if err == nil {
					submitErr = sub.Submit(ctx, p)
				}

				mu.Lock()
				stats.FramesSkipped += skipped
				switch {
				case err != nil:
					stats.SessionsFailed++
				case submitErr != nil:
					stats.SessionsReplayed++
					stats.Refused++
				default:
					stats.SessionsReplayed++
					stats.Submitted++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, rec := range recs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- rec:
		}
	}
	close(jobs)
	wg.Wait()
}

// Session replays one recording through a fresh capture session and builds
// its payload. The session clock is pinned so that the payload duration is
// the recording's duration.
func Session(ctx context.Context, cfg *Config, rec Recording, loc aggregate.Locator) (model.Payload, int, error) { //nolint:gocritic // hugeParam: recordings are values
	start := time.Now()
	sess := capture.New(
		capture.WithID(rec.SessionID),
		capture.WithCapacity(cfg.Capacity),
		capture.WithClock(func() time.Time { return start }),
	)
	src := capture.NewReplaySource()

	var skipped int
	err := sess.Run(ctx, src, src, func(ctx context.Context) error {
		var err error
		skipped, err = src.Play(ctx, rec.Frames)
		return err
	})
	if err != nil {
		return model.Payload{}, skipped, err
	}

	end := start.Add(time.Duration(rec.DurationMS) * time.Millisecond)
	opts := []aggregate.Option{
		aggregate.WithClock(func() time.Time { return end }),
		aggregate.WithLookupTimeout(cfg.LookupTimeout),
	}
	if cfg.Forecast {
		opts = append(opts, aggregate.WithFeatureOptions(features.WithForecast()))
	}
	return aggregate.New(loc, opts...).Build(ctx, sess.Snapshot(), aggregate.StaticEnvironment(rec.Env)), skipped, nil
}

// checkCollector probes /healthz on the endpoint's host.
func checkCollector(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q", endpoint)
	}
	u.Path, u.RawQuery = "/healthz", ""

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return err
	}
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to collector: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The collector answers with Prometheus metrics; any 200 is healthy.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var deliveryRate, sessionsPerSecond float64
	if stats.Submitted > 0 {
		deliveryRate = float64(stats.Delivered) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		sessionsPerSecond = float64(stats.SessionsReplayed) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessionsLoaded", stats.SessionsLoaded),
		logger.Int("sessionsReplayed", stats.SessionsReplayed),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("human", stats.ByProfile[ProfileHuman]),
		logger.Int("bot", stats.ByProfile[ProfileBot]),
		logger.Int("framesSkipped", stats.FramesSkipped),
		logger.Int("submitted", stats.Submitted),
		logger.Int("refused", stats.Refused),
		logger.Any("delivered", stats.Delivered),
		logger.Any("deliveryFailed", stats.DeliveryFailed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("deliveryRate", deliveryRate),
		logger.Float64("sessionsPerSecond", sessionsPerSecond),
	)
}
