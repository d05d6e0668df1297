package healthprobe

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker backs the /health and /ready endpoints. Liveness only says
// the process is up; readiness flips once the feed and engine are running
// and flips back during shutdown so the control API drains cleanly.
type HealthChecker struct {
	startedAt time.Time
	ready     atomic.Bool
}

// New creates a health checker. It reports not-ready until SetReady(true).
func New() *HealthChecker {
	return &HealthChecker{startedAt: time.Now()}
}

// SetReady flips the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HealthResponse is the probe payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

// Health serves liveness: 200 whenever the process can answer at all.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startedAt).String(),
		})
	}
}

// Ready serves readiness: 503 until the bot's components have started.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			writeProbe(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "bot is starting",
			})
			return
		}

		writeProbe(w, http.StatusOK, HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startedAt).String(),
		})
	}
}

func writeProbe(w http.ResponseWriter, code int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
