package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Challenge metrics
	ChallengesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "daybreak_challenges",
			Help: "Number of challenges by status",
		},
		[]string{"status"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_transitions_total",
			Help: "Total number of challenge status transitions by from and to status",
		},
		[]string{"from", "to"},
	)

	TransitionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_transition_conflicts_total",
			Help: "Total number of conditional writes lost to a concurrent transition",
		},
	)

	// Settlement metrics
	ChargesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_charges_created_total",
			Help: "Total number of charges created against the payment provider",
		},
	)

	ChargesSucceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_charges_succeeded_total",
			Help: "Total number of charges confirmed by the payment provider",
		},
	)

	ChargesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_charges_failed_total",
			Help: "Total number of charge attempts rejected by the payment provider",
		},
	)

	ChargeRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_charge_retries_total",
			Help: "Total number of charge retries issued",
		},
	)

	UnresolvedSettlements = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "daybreak_unresolved_settlements",
			Help: "Number of settled challenges whose penalty requires manual resolution",
		},
	)

	SettlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daybreak_settlement_duration_seconds",
			Help:    "Time taken for a settlement attempt including the provider call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sweep metrics
	ExpirySweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daybreak_expiry_sweep_duration_seconds",
			Help:    "Duration of expiry reconciliation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExpirySweepCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_expiry_sweep_cycles_total",
			Help: "Total number of expiry reconciliation cycles",
		},
	)

	RetrySweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daybreak_retry_sweep_duration_seconds",
			Help:    "Duration of settlement retry sweep cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetrySweepCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daybreak_retry_sweep_cycles_total",
			Help: "Total number of settlement retry sweep cycles",
		},
	)

	// Notification metrics
	NotificationsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_notifications_enqueued_total",
			Help: "Total number of notification requests enqueued by kind",
		},
		[]string{"kind"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daybreak_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "daybreak_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ChallengesByStatus)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(TransitionConflictsTotal)
	prometheus.MustRegister(ChargesCreatedTotal)
	prometheus.MustRegister(ChargesSucceededTotal)
	prometheus.MustRegister(ChargesFailedTotal)
	prometheus.MustRegister(ChargeRetriesTotal)
	prometheus.MustRegister(UnresolvedSettlements)
	prometheus.MustRegister(SettlementDuration)
	prometheus.MustRegister(ExpirySweepDuration)
	prometheus.MustRegister(ExpirySweepCyclesTotal)
	prometheus.MustRegister(RetrySweepDuration)
	prometheus.MustRegister(RetrySweepCyclesTotal)
	prometheus.MustRegister(NotificationsEnqueuedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
