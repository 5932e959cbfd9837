// Package metrics holds the Prometheus collectors of the notifier.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifier"

var (
	//FeedEmissions Change feed emissions by outcome (forwarded, absent, unchanged, debounced).
	FeedEmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_emissions_total",
			Help:      "Change feed emissions by admission outcome.",
		},
		[]string{"outcome"},
	)

	//AlertDecisions Cooldown decisions by outcome (allowed, blocked, store_error).
	AlertDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_decisions_total",
			Help:      "Cooldown limiter decisions.",
		},
		[]string{"outcome"},
	)

	//DeliveryResults Push deliveries by dispatch kind and result (success, failure, skipped, invalid).
	DeliveryResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Push deliveries by dispatch kind and result.",
		},
		[]string{"kind", "result"},
	)

	//GatewayDuration Duration of batch gateway calls.
	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_duration_seconds",
			Help:      "Duration of push gateway batch calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	//RegistrationsPruned Registrations deleted by hygiene, by reason (invalid_format, permanent_failure,
	//superseded, duplicate).
	RegistrationsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_pruned_total",
			Help:      "Registrations deleted by registry hygiene.",
		},
		[]string{"reason"},
	)

	//StatusRecords Raw status records archived, by result (ok, error).
	StatusRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_records_total",
			Help:      "Raw status records written to the archive.",
		},
		[]string{"result"},
	)
)

//Handler Exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
