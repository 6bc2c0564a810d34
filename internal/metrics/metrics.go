package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage counters and histograms, partitioned by network where a stage runs
// per wallet/network partition.

var (
	// Classification
	ClassifierBatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "classifier",
		Name:      "batches_processed_total",
		Help:      "Total raw transaction batches classified",
	}, []string{"network"})

	ClassifierTxFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "classifier",
		Name:      "transactions_failed_total",
		Help:      "Total raw transactions marked FAILED during classification",
	}, []string{"network"})

	ClassifierEventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "classifier",
		Name:      "events_written_total",
		Help:      "Total economic events upserted",
	}, []string{"network"})

	ClassifierBatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txledger",
		Subsystem: "classifier",
		Name:      "batch_duration_seconds",
		Help:      "Classification batch processing duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"network"})

	// Pricing
	PricingPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "pricing",
		Name:      "passes_total",
		Help:      "Total scheduled pricing passes",
	})

	PricingTxAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "pricing",
		Name:      "transactions_advanced_total",
		Help:      "Total transactions advanced to PENDING_STAT",
	})

	PricingTxDemoted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "pricing",
		Name:      "transactions_demoted_total",
		Help:      "Total transactions demoted to NEEDS_REVIEW after retry exhaustion",
	})

	PricingResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "pricing",
		Name:      "resolutions_total",
		Help:      "Total price resolutions by source",
	}, []string{"source"})

	PricingPassLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txledger",
		Subsystem: "pricing",
		Name:      "pass_duration_seconds",
		Help:      "Pricing pass duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// Stat / consistency
	StatPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "stat",
		Name:      "passes_total",
		Help:      "Total scheduled consistency passes",
	})

	StatTxConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "stat",
		Name:      "transactions_confirmed_total",
		Help:      "Total transactions promoted to CONFIRMED",
	})

	StatTxNeedsReview = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "stat",
		Name:      "transactions_needs_review_total",
		Help:      "Total transactions demoted to NEEDS_REVIEW by reason",
	}, []string{"reason"})

	StatRecalcSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "stat",
		Name:      "recalc_signals_total",
		Help:      "Total recalculation signals published",
	})

	StatPassLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txledger",
		Subsystem: "stat",
		Name:      "pass_duration_seconds",
		Help:      "Consistency pass duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// Price API
	PriceAPICallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "priceapi",
		Name:      "calls_total",
		Help:      "Total external price API calls by status",
	}, []string{"status"})

	PriceAPIRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "priceapi",
		Name:      "rate_limit_waits_total",
		Help:      "Total times price API calls waited for the rate limiter",
	})

	PriceAPICacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "priceapi",
		Name:      "cache_hits_total",
		Help:      "Total historical price cache hits",
	})

	PriceAPIBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "txledger",
		Subsystem: "priceapi",
		Name:      "breaker_state",
		Help:      "Price API circuit breaker state (0=CLOSED, 1=OPEN, 2=HALF_OPEN)",
	})

	// Recalculation dispatch
	RecalcJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "recalc",
		Name:      "jobs_total",
		Help:      "Total recalculation jobs by outcome",
	}, []string{"outcome"})

	RecalcJobLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txledger",
		Subsystem: "recalc",
		Name:      "job_duration_seconds",
		Help:      "Recalculation job duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// Scheduler
	SchedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Total scheduler ticks per stage",
	}, []string{"stage"})

	SchedulerTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "scheduler",
		Name:      "tick_errors_total",
		Help:      "Total scheduler tick errors per stage",
	}, []string{"stage"})

	SchedulerTickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txledger",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Scheduler tick duration per stage",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	// Sync progress
	SyncRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "sync",
		Name:      "retries_total",
		Help:      "Total sync failures scheduled for retry",
	}, []string{"network"})

	SyncProgressPct = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "txledger",
		Subsystem: "sync",
		Name:      "progress_pct",
		Help:      "Sync progress percentage per wallet/network",
	}, []string{"network", "wallet"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txledger",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)
