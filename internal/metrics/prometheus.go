package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	AuthorizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frigg_authorizations_total",
		Help: "Total number of processed authorization callbacks.",
	}, []string{"module", "result"})
	TokenUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frigg_token_updates_total",
		Help: "Total number of persisted token updates.",
	}, []string{"module"})
	DeauthorizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frigg_deauthorizations_total",
		Help: "Total number of deauthorized credentials.",
	}, []string{"module"})
	InvalidAuthTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frigg_invalid_auth_total",
		Help: "Total number of credentials marked invalid.",
	}, []string{"module"})
	ConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frigg_conflicts_total",
		Help: "Total number of duplicate entity or credential conflicts.",
	}, []string{"module", "kind"})
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "frigg_api_requests_total",
		Help: "Total number of HTTP API requests served.",
	}, []string{"method", "status"})
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// InitCustomMetrics registers the frigg collectors with reg.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"AuthorizationsTotal":   AuthorizationsTotal,
		"TokenUpdatesTotal":     TokenUpdatesTotal,
		"DeauthorizationsTotal": DeauthorizationsTotal,
		"InvalidAuthTotal":      InvalidAuthTotal,
		"ConflictsTotal":        ConflictsTotal,
		"APIRequestsTotal":      APIRequestsTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
