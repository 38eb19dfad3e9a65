package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA and the client core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	outboundDuration   *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	movementsSubmitted *prometheus.CounterVec
	ledgerAnomalies    *prometheus.CounterVec
	overdraftAlerts    prometheus.Counter
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// ClientSnapshot is a JSON-friendly view of the cumulative counters.
type ClientSnapshot struct {
	SessionsEstablished float64            `json:"sessions_established"`
	SessionsEnded       float64            `json:"sessions_ended"`
	MovementsSubmitted  map[string]float64 `json:"movements_submitted"`
	ExternalErrors      map[string]float64 `json:"external_errors"`
	OverdraftAlerts     float64            `json:"overdraft_alerts"`
	CategoryCacheHit    float64            `json:"category_cache_hit_rate"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		outboundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gestor_outbound_request_duration_seconds",
				Help:    "Duration of backend API calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_external_errors_total",
				Help: "Backend API failures by error kind.",
			},
			[]string{"kind"},
		),
		sessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_session_transitions_total",
				Help: "Session state transitions by target state.",
			},
			[]string{"state"},
		),
		movementsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_movements_submitted_total",
				Help: "Movements persisted through the submission pipeline.",
			},
			[]string{"kind"},
		),
		ledgerAnomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_ledger_anomalies_total",
				Help: "Movements breaking the sign/category invariant.",
			},
			[]string{"reason"},
		),
		overdraftAlerts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gestor_overdraft_alerts_total",
				Help: "Times the available balance crossed below zero.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordOutbound records the duration of a backend call.
func (m *Metrics) RecordOutbound(operation string, d time.Duration) {
	m.outboundDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the backend failure counter.
func (m *Metrics) IncrExternalError(kind string) {
	m.externalErrors.WithLabelValues(kind).Inc()
}

// IncrSessionTransition counts a session entering state.
func (m *Metrics) IncrSessionTransition(state string) {
	m.sessionTransitions.WithLabelValues(state).Inc()
}

// IncrMovementSubmitted counts a persisted movement.
func (m *Metrics) IncrMovementSubmitted(kind string) {
	m.movementsSubmitted.WithLabelValues(kind).Inc()
}

// IncrLedgerAnomaly counts an entry that broke the invariant.
func (m *Metrics) IncrLedgerAnomaly(reason string) {
	m.ledgerAnomalies.WithLabelValues(reason).Inc()
}

// IncrOverdraftAlert counts a fired overdraft edge.
func (m *Metrics) IncrOverdraftAlert() {
	m.overdraftAlerts.Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot returns the current counter values, served by GET /v1/metrics/client.
func (m *Metrics) Snapshot() *ClientSnapshot {
	hits := getCounterValue(m.cacheHits.WithLabelValues("categories"))
	misses := getCounterValue(m.cacheMisses.WithLabelValues("categories"))
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &ClientSnapshot{
		SessionsEstablished: getCounterValue(m.sessionTransitions.WithLabelValues("authenticated")),
		SessionsEnded:       getCounterValue(m.sessionTransitions.WithLabelValues("anonymous")),
		MovementsSubmitted: map[string]float64{
			"ingreso": getCounterValue(m.movementsSubmitted.WithLabelValues("ingreso")),
			"egreso":  getCounterValue(m.movementsSubmitted.WithLabelValues("egreso")),
		},
		ExternalErrors: map[string]float64{
			"network":      getCounterValue(m.externalErrors.WithLabelValues("network")),
			"server":       getCounterValue(m.externalErrors.WithLabelValues("server")),
			"unauthorized": getCounterValue(m.externalErrors.WithLabelValues("unauthorized")),
		},
		OverdraftAlerts:  getCounterValue(m.overdraftAlerts),
		CategoryCacheHit: hitRate,
	}
}

// getCounterValue extracts the current float64 value of a counter.
func getCounterValue(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
