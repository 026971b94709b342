package httpapi

import (
	"net/http"

	"github.com/fleetctl/mongoelect/election"
	"github.com/fleetctl/mongoelect/internal/metrics"
)

// ElectionHandler exposes read-only introspection into a single Elector:
// this instance's own status and the cluster-wide view it can see.
type ElectionHandler struct {
	elector *election.Elector
	key     string
}

func NewElectionHandler(elector *election.Elector, key string) *ElectionHandler {
	return &ElectionHandler{elector: elector, key: key}
}

// Status reports this instance's current StatusDoc — the same heartbeat
// document the elector writes into the status collection every poll cycle.
func (h *ElectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.elector.NodeStatus())
}

// Cluster reports every instance's last-known status for this elector's
// key, and who among them currently claims leadership.
func (h *ElectionHandler) Cluster(w http.ResponseWriter, r *http.Request) {
	detail, err := h.elector.ClusterDetail(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	metrics.ClusterMembers.WithLabelValues(h.key).Set(float64(len(detail.Members)))
	writeJSON(w, http.StatusOK, detail)
}
