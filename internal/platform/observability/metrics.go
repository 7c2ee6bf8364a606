package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_articles_ingested_total",
		Help: "The total number of ingested articles by bucket",
	}, []string{"bucket"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_provider_requests_total",
		Help: "Total number of provider fetch requests",
	}, []string{"source", "result"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tickwatch_provider_request_duration_seconds",
		Help:    "Duration of provider fetch requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	StageProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_stage_processed_total",
		Help: "Articles processed per stage by outcome",
	}, []string{"stage", "outcome"})

	OracleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tickwatch_oracle_request_duration_seconds",
		Help:    "Duration of oracle requests",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"task"})

	OracleFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_oracle_fallbacks_total",
		Help: "Total number of malformed oracle responses replaced by the deterministic fallback",
	}, []string{"task"})

	ExplanationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_explanation_cache_hits_total",
		Help: "Total number of explanation cache hits",
	})

	ExplanationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_explanation_cache_misses_total",
		Help: "Total number of explanation cache misses",
	})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_job_runs_total",
		Help: "Total number of job invocations by outcome (ran, skipped, error)",
	}, []string{"job", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tickwatch_job_duration_seconds",
		Help:    "Duration of pipeline job runs",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"job"})

	PipelineBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickwatch_pipeline_backlog",
		Help: "Number of articles per status",
	}, []string{"status"})

	DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwatch_drops_total",
		Help: "Total number of discarded articles by reason",
	}, []string{"reason"})

	ClustersFormed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwatch_clusters_formed_total",
		Help: "Total number of story clusters formed",
	})
)
