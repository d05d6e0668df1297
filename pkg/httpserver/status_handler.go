package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

// Controller is the engine-facing surface the HTTP API drives. All calls are
// forwarded to the engine's command channel, so they serialize with ticks.
type Controller interface {
	// Status returns a point-in-time snapshot of the running bot.
	Status(ctx context.Context) (interface{}, error)

	// UpdateConfig applies one strategy parameter update.
	UpdateConfig(ctx context.Context, key, value string) error

	// ResetPaper resets paper-trading state to the starting bankroll.
	ResetPaper(ctx context.Context) error

	// SetMode switches execution mode ("sim", "sim-realistic", "live").
	SetMode(ctx context.Context, mode string) error

	// SetEnabled starts or stops new cycle entries.
	SetEnabled(ctx context.Context, enabled bool) error

	// SelectMarket manually selects a market by slug, overriding discovery.
	SelectMarket(ctx context.Context, slug string) error
}

// StatusHandler serves the bot status and control endpoints.
type StatusHandler struct {
	controller Controller
	logger     *zap.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(controller Controller, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		controller: controller,
		logger:     logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	Status string `json:"status"`
}

// HandleStatus handles GET /api/status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.controller.Status(r.Context())
	if err != nil {
		h.logger.Error("status-request-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

type configUpdateRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HandleConfigUpdate handles POST /api/config.
func (h *StatusHandler) HandleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var req configUpdateRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err = h.controller.UpdateConfig(r.Context(), req.Key, req.Value)
	if err != nil {
		var vErr *types.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: vErr.Error()})
			return
		}

		h.logger.Error("config-update-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("config-updated",
		zap.String("key", req.Key),
		zap.String("value", req.Value))

	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

// HandleReset handles POST /api/reset.
func (h *StatusHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	err := h.controller.ResetPaper(r.Context())
	if err != nil {
		h.logger.Error("paper-reset-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("paper-trading-reset")
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

type modeSwitchRequest struct {
	Mode string `json:"mode"`
}

// HandleModeSwitch handles POST /api/mode.
func (h *StatusHandler) HandleModeSwitch(w http.ResponseWriter, r *http.Request) {
	var req modeSwitchRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err = h.controller.SetMode(r.Context(), req.Mode)
	if err != nil {
		var vErr *types.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: vErr.Error()})
			return
		}

		h.logger.Error("mode-switch-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("execution-mode-switched", zap.String("mode", req.Mode))
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

type enabledSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleEnabledSwitch handles POST /api/enabled.
func (h *StatusHandler) HandleEnabledSwitch(w http.ResponseWriter, r *http.Request) {
	var req enabledSwitchRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err = h.controller.SetEnabled(r.Context(), req.Enabled)
	if err != nil {
		h.logger.Error("enabled-switch-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("trading-enabled-changed", zap.Bool("enabled", req.Enabled))
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

type marketSelectRequest struct {
	Slug string `json:"slug"`
}

// HandleMarketSelect handles POST /api/market.
func (h *StatusHandler) HandleMarketSelect(w http.ResponseWriter, r *http.Request) {
	var req marketSelectRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err = h.controller.SelectMarket(r.Context(), req.Slug)
	if err != nil {
		var nfErr *types.MarketNotFoundError
		if errors.As(err, &nfErr) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: nfErr.Error()})
			return
		}

		h.logger.Error("market-select-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("market-selected", zap.String("slug", req.Slug))
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
