package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation runs by outcome (ok, extract_error, engine_error)",
		},
		[]string{"outcome"},
	)

	ReconcileSkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_skipped_ticks_total",
			Help: "Scheduler ticks skipped because a run was still in flight",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_run_duration_seconds",
			Help:    "Duration of a full extract + reconcile run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	OrdersDecidedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_decided_total",
			Help: "Orders moved out of pending, by status and source",
		},
		[]string{"status", "source"},
	)

	OrderFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_order_failures_total",
			Help: "Matched orders whose approval transaction failed",
		},
	)

	ReferralCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_credits_total",
			Help: "Referral bonus attempts by result (credited, self_referral)",
		},
		[]string{"result"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification channel attempts by channel and result",
		},
		[]string{"channel", "result"},
	)
)
