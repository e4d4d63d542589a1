package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supai_question_duration_seconds",
			Help:    "Question processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	QuestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_questions_total",
			Help: "Total questions processed, by overall failure type",
		},
		[]string{"failure_type"},
	)

	RetrievalStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_retrieval_status_total",
			Help: "Retrieval classification outcomes",
		},
		[]string{"status"},
	)

	GenerationStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_generation_status_total",
			Help: "Generation classification outcomes",
		},
		[]string{"status"},
	)

	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_llm_tokens_used",
			Help: "Total provider tokens used",
		},
		[]string{"type"},
	)

	CostUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supai_llm_cost_usd",
			Help: "Accumulated provider cost in USD across all sessions",
		},
	)

	BudgetRefusals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supai_budget_refusals_total",
			Help: "Paid operations refused because a session budget was exceeded",
		},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_documents_ingested_total",
			Help: "Documents ingested, by outcome",
		},
		[]string{"status"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supai_chunks_indexed_total",
			Help: "Passages added to session indices",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supai_sessions_active",
			Help: "Currently live sessions",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supai_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(QuestionDuration)
	prometheus.MustRegister(QuestionsTotal)
	prometheus.MustRegister(RetrievalStatus)
	prometheus.MustRegister(GenerationStatus)
	prometheus.MustRegister(TokensUsed)
	prometheus.MustRegister(CostUSD)
	prometheus.MustRegister(BudgetRefusals)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
