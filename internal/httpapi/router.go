package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetctl/mongoelect/pkg/middleware"
)

// Router wires the introspection endpoints an operator or load balancer
// hits from outside: liveness/readiness plus this instance's and the
// cluster's election state.
type Router struct {
	health   *HealthHandler
	election *ElectionHandler
	cors     middleware.CORSConfig
}

func NewRouter(health *HealthHandler, election *ElectionHandler, cors middleware.CORSConfig) *Router {
	return &Router{health: health, election: election, cors: cors}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", rt.health.Health)
	mux.HandleFunc("/readyz", rt.health.Ready)
	mux.HandleFunc("/v1/status", rt.election.Status)
	mux.HandleFunc("/v1/cluster", rt.election.Cluster)
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.CORS(rt.cors)(mux)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CorrelationID(handler)

	return handler
}
