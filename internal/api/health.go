package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/scribe/internal/ingest"
)

// HealthChecker is satisfied by *database.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionChecker is satisfied by *mqttclient.Client.
type ConnectionChecker interface {
	IsConnected() bool
}

// WatcherStatusSource is satisfied by *ingest.FileWatcher.
type WatcherStatusSource interface {
	Status() *ingest.WatcherStatus
}

// PipelineStats reports live pipeline counters.
type PipelineStats interface {
	InFlight() int
	TotalCostUSD() float64
	Stats() (completed, failed int64)
}

type HealthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Backend       string                `json:"backend"`
	Storage       string                `json:"storage"`
	Checks        map[string]string     `json:"checks"`
	Pipeline      *PipelineHealth       `json:"pipeline,omitempty"`
	Watcher       *ingest.WatcherStatus `json:"watcher,omitempty"`
}

type PipelineHealth struct {
	InFlight     int     `json:"in_flight"`
	Completed    int64   `json:"completed"`
	Failed       int64   `json:"failed"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// HealthHandler reports the state of the optional collaborators. Any nil
// collaborator is left out of the checks.
type HealthHandler struct {
	db        HealthChecker
	mqtt      ConnectionChecker
	watcher   WatcherStatusSource
	pipeline  PipelineStats
	backend   string
	storage   string
	version   string
	startTime time.Time
}

func NewHealthHandler(db HealthChecker, mqtt ConnectionChecker, watcher WatcherStatusSource, pipeline PipelineStats, backend, storage, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		watcher:   watcher,
		pipeline:  pipeline,
		backend:   backend,
		storage:   storage,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["database"] = "connected"
		}
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "connected"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Backend:       h.backend,
		Storage:       h.storage,
		Checks:        checks,
	}

	if h.pipeline != nil {
		completed, failed := h.pipeline.Stats()
		resp.Pipeline = &PipelineHealth{
			InFlight:     h.pipeline.InFlight(),
			Completed:    completed,
			Failed:       failed,
			TotalCostUSD: h.pipeline.TotalCostUSD(),
		}
	}

	if h.watcher != nil {
		resp.Watcher = h.watcher.Status()
		checks["watcher"] = resp.Watcher.Status
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, resp)
}
