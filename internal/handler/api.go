// Package handler serves the optional local diagnostics listener. It is
// read-only and never touches the MCP session.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/model"
	"github.com/ippclub/crates-mcp/internal/service"
	"github.com/ippclub/crates-mcp/internal/store"
	"github.com/ippclub/crates-mcp/internal/telemetry"
	"go.uber.org/zap"
)

const (
	statusRPS   = 5
	statusBurst = 10

	defaultCallsLimit = 20
	maxCallsLimit     = 200
)

// API handles HTTP requests
type API struct {
	cfg         *config.Config
	logger      *zap.Logger
	mirror      service.Mirror
	indexes     *service.IndexService
	store       *store.SQLiteStore // nil when the journal is disabled
	recorder    *telemetry.Recorder
	rateLimiter *RateLimiter
	sessionID   string
	started     time.Time
}

// NewAPI creates a new API instance
func NewAPI(cfg *config.Config, logger *zap.Logger, mirror service.Mirror, indexes *service.IndexService, st *store.SQLiteStore, recorder *telemetry.Recorder, sessionID string) *API {
	return &API{
		cfg:         cfg,
		logger:      logger,
		mirror:      mirror,
		indexes:     indexes,
		store:       st,
		recorder:    recorder,
		rateLimiter: NewRateLimiter(statusRPS, statusBurst),
		sessionID:   sessionID,
		started:     time.Now(),
	}
}

// Close stops the rate limiter. The store belongs to the caller.
func (a *API) Close() {
	a.rateLimiter.Close()
}

// RegisterRoutes registers the API routes
func (a *API) RegisterRoutes(r chi.Router) {
	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(LocalOnly)
	r.Use(a.rateLimiter.RateLimit)

	r.Get("/healthz", a.healthz)
	r.Get("/status", a.status)
	r.Get("/calls", a.recentCalls)
}

type statusResponse struct {
	Server  serverStatus     `json:"server"`
	Index   *service.Report  `json:"index"`
	Journal *journalStatus   `json:"journal"`
	Calls   map[string]int64 `json:"calls"`
}

type serverStatus struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	SessionID string `json:"session_id"`
	Uptime    string `json:"uptime"`
}

type journalStatus struct {
	Enabled bool                `json:"enabled"`
	Tools   []*model.DBToolStat `json:"tools"`
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status reports the settled index state, journal totals and in-process call
// counts.
func (a *API) status(w http.ResponseWriter, r *http.Request) {
	report, err := a.indexes.Report(a.mirror)
	if err != nil {
		a.logger.Error("failed to build index report", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	journal := &journalStatus{Enabled: a.store != nil, Tools: []*model.DBToolStat{}}
	if a.store != nil {
		stats, err := a.store.ToolCallStats()
		if err != nil {
			a.logger.Error("failed to get tool stats", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if stats != nil {
			journal.Tools = stats
		}
	}

	calls, err := a.recorder.CallCounts(r.Context())
	if err != nil {
		a.logger.Error("failed to collect call counts", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Server: serverStatus{
			Name:      a.cfg.Server.Name,
			Version:   a.cfg.Server.Version,
			SessionID: a.sessionID,
			Uptime:    time.Since(a.started).Round(time.Second).String(),
		},
		Index:   report,
		Journal: journal,
		Calls:   calls,
	})
}

// recentCalls returns the newest journaled tool calls
func (a *API) recentCalls(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	limit := defaultCallsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxCallsLimit)
	}

	calls, err := a.store.RecentToolCalls(limit)
	if err != nil {
		a.logger.Error("failed to get recent calls", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if calls == nil {
		calls = []*model.DBToolCall{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
