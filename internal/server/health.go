package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jittakal/kafbulk/pkg/buffer"
	"github.com/jittakal/kafbulk/pkg/consumer"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Adapter is the part of a stream adapter the health checks read.
type Adapter interface {
	State() consumer.State
	Connected() bool
	Err() error
}

// AdapterChecker implements HealthChecker on top of a stream adapter.
// The process is live until the ingest loop fails on its own and ready
// while the broker connection is up.
type AdapterChecker struct {
	adapter Adapter
	stats   func() buffer.Stats
}

// NewAdapterChecker creates a checker. stats may be nil.
func NewAdapterChecker(adapter Adapter, stats func() buffer.Stats) *AdapterChecker {
	return &AdapterChecker{adapter: adapter, stats: stats}
}

// Liveness reports false once the ingest loop ended with an error.
func (c *AdapterChecker) Liveness() bool {
	return c.adapter.Err() == nil
}

// Readiness reports whether the adapter is connected.
func (c *AdapterChecker) Readiness(ctx context.Context) bool {
	return ctx.Err() == nil && c.adapter.Connected()
}

// GetStatus returns the adapter state and buffer counters.
func (c *AdapterChecker) GetStatus() map[string]string {
	status := map[string]string{
		"state": c.adapter.State().String(),
	}
	if err := c.adapter.Err(); err != nil {
		status["error"] = err.Error()
	}
	if c.stats == nil {
		return status
	}

	s := c.stats()
	status["buffered_items"] = strconv.Itoa(s.BufferedItems)
	status["buffered_bytes"] = strconv.FormatInt(s.BufferedBytes, 10)
	status["batches"] = strconv.FormatUint(s.Batches, 10)
	status["failed_batches"] = strconv.FormatUint(s.FailedBatches, 10)
	if !s.LastFlushAt.IsZero() {
		status["last_flush_at"] = s.LastFlushAt.UTC().Format(time.RFC3339)
		status["last_flush_reason"] = string(s.LastFlushReason)
	}
	return status
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeHealth(w http.ResponseWriter, statusCode int, response HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}
