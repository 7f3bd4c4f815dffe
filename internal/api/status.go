package api

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthCheckTimeout bounds dependency checks made by /healthz.
const healthCheckTimeout = 2 * time.Second

// StatusResponse is the /status payload.
type StatusResponse struct {
	Timestamp         string         `json:"timestamp"`
	Version           string         `json:"version"`
	UptimeSeconds     int64          `json:"uptime_seconds"`
	DeviceID          string         `json:"device_id"`
	Link              LinkInfo       `json:"link"`
	Subscriptions     []string       `json:"subscriptions"`
	PendingDeliveries int            `json:"pending_deliveries"`
	Runtime           RuntimeMetrics `json:"runtime"`
}

// LinkInfo describes the MQTT link state.
type LinkInfo struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Since     string `json:"since"`
	Error     string `json:"error,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status   string `json:"status"`
	State    string `json:"state"`
	Database string `json:"database,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleHealth answers 200 while the link is connected and the database (if
// any) responds, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.link.Status()
	resp := HealthResponse{Status: "ok", State: string(st.State)}
	code := http.StatusOK

	if !st.Connected() {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
		if st.Err != nil {
			resp.Error = st.Err.Error()
		}
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Database = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	writeJSON(w, code, resp)
}

// handleStatus returns a snapshot of the link and process.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	st := s.link.Status()
	link := LinkInfo{
		State:     string(st.State),
		Connected: st.Connected(),
		Since:     st.Since.UTC().Format(time.RFC3339),
	}
	if st.Err != nil {
		link.Error = st.Err.Error()
	}

	subs := s.link.Subscriptions()
	if subs == nil {
		subs = []string{}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Version:           s.version,
		UptimeSeconds:     int64(time.Since(s.startTime).Seconds()),
		DeviceID:          s.link.DeviceID(),
		Link:              link,
		Subscriptions:     subs,
		PendingDeliveries: s.link.PendingDeliveries(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	})
}
