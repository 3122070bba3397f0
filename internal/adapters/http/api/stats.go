package api

import (
	"net/http"
)

// StatsProvider reports collector counters: queue depth, dedupe window
// occupancy, worker throughput and stored submissions.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves a JSON snapshot of collector statistics.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a stats handler backed by statsProvider.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats. Without a provider it answers 503.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if h.statsProvider == nil {
		writeError(w, http.StatusServiceUnavailable, errorCode(ErrUnavailable), nil)
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}
