package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SlotsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slots_created_total",
		Help: "Total number of slots created",
	})

	SlotClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_claims_total",
		Help: "Slot claim attempts by result",
	}, []string{"result"})

	SlotsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slots_released_total",
		Help: "Total number of slots returned to free",
	}, []string{"reason"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Committed order status transitions",
	}, []string{"from", "to"})

	OrderTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Order status transitions rejected as invalid",
	}, []string{"from", "to"})

	DraftsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_drafts_expired_total",
		Help: "Draft orders cancelled by the sweeper",
	})

	SlotClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slot_claim_latency_seconds",
		Help:    "Latency of the claim-and-create order transaction",
		Buckets: prometheus.DefBuckets,
	})

	SignalsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_signals_processed_total",
		Help: "External order signals by type and outcome",
	}, []string{"type", "outcome"})

	ViewEventsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "view_events_ingested_total",
		Help: "Raw view events stored (duplicates excluded)",
	})

	AggregationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_aggregation_runs_total",
		Help: "Aggregator passes by result",
	}, []string{"result"})

	AggregationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analytics_aggregation_latency_seconds",
		Help:    "Duration of one aggregator pass",
		Buckets: prometheus.DefBuckets,
	})

	RollupsRecomputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_rollups_recomputed_total",
		Help: "Daily rollup rows recomputed",
	})

	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "background_job_runs_total",
		Help: "Periodic job executions by job and result",
	}, []string{"job", "result"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_notifications_total",
		Help: "Direct messages to channel owners and advertisers by kind and result",
	}, []string{"kind", "result"})

	PostsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telegram_posts_published_total",
		Help: "Channel post attempts for scheduled orders by result",
	}, []string{"result"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
