package httpapi

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler reports process and database liveness, independent of
// election state: a follower is just as healthy as a leader.
type HealthHandler struct {
	client    *mongo.Client
	startTime time.Time
	version   string
}

func NewHealthHandler(client *mongo.Client, version string) *HealthHandler {
	return &HealthHandler{client: client, startTime: time.Now(), version: version}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	MongoDB       string `json:"mongodb"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type readyResponse struct {
	Ready   bool   `json:"ready"`
	MongoDB string `json:"mongodb"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	mongoStatus := "connected"
	if err := h.client.Ping(r.Context(), nil); err != nil {
		mongoStatus = "disconnected"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		MongoDB:       mongoStatus,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := true
	mongoStatus := "connected"

	if err := h.client.Ping(r.Context(), nil); err != nil {
		ready = false
		mongoStatus = "disconnected"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readyResponse{Ready: ready, MongoDB: mongoStatus})
}
