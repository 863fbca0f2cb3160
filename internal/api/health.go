package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kushiiitd05/IntelliScript/internal/transcribe"
)

// WatcherStatusData represents the status of the drop-folder watcher.
type WatcherStatusData struct {
	Status         string `json:"status"` // "watching", "backfilling", "stopped"
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// Pinger is a dependency that can report its own health.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ConnState reports whether a long-lived connection is up.
type ConnState interface {
	IsConnected() bool
}

// WatcherSource exposes the drop-folder watcher status.
type WatcherSource interface {
	Status() *WatcherStatusData
}

// QueueSource exposes worker pool statistics.
type QueueSource interface {
	Stats() transcribe.QueueStats
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]string      `json:"checks"`
	Queue         *transcribe.QueueStats `json:"queue,omitempty"`
	Watcher       *WatcherStatusData     `json:"watcher,omitempty"`
	STTModel      string                 `json:"stt_model,omitempty"`
}

// HealthHandler serves GET /api/v1/health. The database is required; Redis,
// MQTT and the watcher only degrade the status.
type HealthHandler struct {
	db        Pinger
	redis     Pinger
	mqtt      ConnState
	watcher   WatcherSource
	queue     QueueSource
	sttModel  string
	version   string
	startTime time.Time
}

func NewHealthHandler(deps Deps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        deps.DB,
		redis:     deps.Redis,
		mqtt:      deps.MQTT,
		watcher:   deps.Watcher,
		queue:     deps.Queue,
		sttModel:  deps.STTModel,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// Database check
	if h.db == nil {
		checks["database"] = "not_configured"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// Redis check
	if h.redis != nil {
		if err := h.redis.HealthCheck(r.Context()); err != nil {
			checks["redis"] = "error"
			degrade()
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not_configured"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		STTModel:      h.sttModel,
	}

	if h.watcher != nil {
		if ws := h.watcher.Status(); ws != nil {
			checks["file_watcher"] = ws.Status
			resp.Watcher = ws
		}
	}
	if h.queue != nil {
		qs := h.queue.Stats()
		resp.Queue = &qs
	}

	resp.Status = status
	WriteJSON(w, httpStatus, resp)
}
