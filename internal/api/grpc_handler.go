package api

import (
	"sync"

	"storefront-sync/internal/store"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServicePrefix prefixes the per-domain gRPC health service names.
const HealthServicePrefix = "storefront."

// HealthReporter mirrors domain state into a gRPC health server. A domain
// reports NOT_SERVING after a transport failure and SERVING after any other
// settlement; status failures mean the backend answered, so it is reachable.
type HealthReporter struct {
	server *health.Server
	logger *zap.Logger

	mu      sync.Mutex
	current map[store.Domain]healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthReporter registers every domain as SERVING on server.
func NewHealthReporter(server *health.Server, logger *zap.Logger) *HealthReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthReporter{
		server:  server,
		logger:  logger.Named("health"),
		current: make(map[store.Domain]healthpb.HealthCheckResponse_ServingStatus, len(store.AllDomains)),
	}
	for _, d := range store.AllDomains {
		h.set(d, healthpb.HealthCheckResponse_SERVING)
	}
	server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h
}

// ServiceName is the health service name of d.
func ServiceName(d store.Domain) string { return HealthServicePrefix + string(d) }

// Issued implements store.Observer.
func (h *HealthReporter) Issued(string, store.Domain) {}

// Settled implements store.Observer.
func (h *HealthReporter) Settled(s store.Settlement) {
	switch s.Outcome {
	case store.OutcomeSucceeded:
		h.set(s.Domain, healthpb.HealthCheckResponse_SERVING)
	case store.OutcomeFailed:
		if s.Err != nil && s.Err.Kind == store.KindTransport {
			h.set(s.Domain, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		h.set(s.Domain, healthpb.HealthCheckResponse_SERVING)
	}
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) set(d store.Domain, st healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	prev, seen := h.current[d]
	h.current[d] = st
	h.mu.Unlock()
	if seen && prev == st {
		return
	}
	if seen {
		h.logger.Info("domain health changed", zap.String("domain", string(d)), zap.Stringer("status", st))
	}
	h.server.SetServingStatus(ServiceName(d), st)
}

var _ store.Observer = (*HealthReporter)(nil)
