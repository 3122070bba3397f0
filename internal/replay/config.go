package replay

import (
	"time"

	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
)

// Profile selects how synthetic sessions behave.
type Profile string

// Supported profiles.
const (
	ProfileHuman Profile = "human"
	ProfileBot   Profile = "bot"
	ProfileMixed Profile = "mixed"
)

// Config holds configuration for a replay run.
type Config struct {
	EndpointURL   string        // Collector submit endpoint
	IPLookupURL   string        // Public ip service
	GeoLookupURL  string        // Geo service, %s is replaced by the ip
	Sessions      int           // Number of synthetic sessions to generate
	Profile       Profile       // Behaviour of synthetic sessions
	Seed          uint64        // Generator seed; runs with the same seed are identical
	Workers       int           // Number of concurrent replay workers
	RecordingFile string        // Replay these recordings instead of generating
	OutputFile    string        // Save the replayed recordings here
	Offline       bool          // Use fixed lookup results instead of HTTP services
	LookupTimeout time.Duration // Per-lookup timeout
	SubmitTimeout time.Duration // Per-submission timeout
	Capacity      int           // Per-modality buffer bound, 0 keeps everything
	Forecast      bool          // Use the one-step forecast predictive model
	SkipHealth    bool          // Do not probe the collector before submitting
}

// Recording is one captured or synthetic session in replayable form.
type Recording struct {
	SessionID  string           `json:"sessionId,omitempty"`
	Profile    Profile          `json:"profile,omitempty"`
	DurationMS int64            `json:"durationMs"`
	Env        aggregate.Device `json:"env"`
	Frames     []capture.Frame  `json:"frames"`
}

// Stats holds run statistics.
type Stats struct {
	SessionsLoaded   int
	SessionsReplayed int
	SessionsFailed   int
	FramesSkipped    int
	Submitted        int
	Refused          int
	Delivered        int64
	DeliveryFailed   int64
	ByProfile        map[Profile]int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
