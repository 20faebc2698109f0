package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	retrieverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rag_retriever_latency_ms",
		Help:    "Latency of retriever calls in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200},
	}, []string{"type"})

	retrieverResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rag_retriever_results",
		Help:    "Number of results returned by a retriever",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"type"})

	fusionLists = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_fusion_input_lists",
		Help:    "Number of lists fused per query",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 12},
	})

	cragVerdict = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_crag_verdict_total",
		Help: "CRAG verdict count",
	}, []string{"verdict"})

	gatingDecision = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_gating_decision_total",
		Help: "Stage gate decisions (skip/evaluate/neutral)",
	}, []string{"decision"})

	intentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_intent_total",
		Help: "Classified query intents",
	}, []string{"intent"})

	validationRetries = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_output_validation_retries",
		Help:    "Output validation attempts spent per query",
		Buckets: []float64{0, 1, 2, 3},
	})

	queryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rag_query_latency_ms",
		Help:    "End-to-end query latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
	}, []string{"intent"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(retrieverLatency, retrieverResults, fusionLists,
			cragVerdict, gatingDecision, intentTotal, validationRetries, queryLatency)
	})
}

// ObserveRetriever records latency and result size for a retriever type.
func ObserveRetriever(typ string, start time.Time, results int) {
	ensureRegistered()
	dur := time.Since(start).Milliseconds()
	retrieverLatency.WithLabelValues(typ).Observe(float64(dur))
	retrieverResults.WithLabelValues(typ).Observe(float64(results))
}

// ObserveFusion records how many lists were fused.
func ObserveFusion(n int) {
	ensureRegistered()
	fusionLists.Observe(float64(n))
}

// IncCRAGVerdict increments verdict counter.
func IncCRAGVerdict(v string) {
	ensureRegistered()
	cragVerdict.WithLabelValues(v).Inc()
}

// IncGating records a stage gate decision.
func IncGating(decision string) {
	ensureRegistered()
	gatingDecision.WithLabelValues(decision).Inc()
}

// IncIntent counts a classified intent.
func IncIntent(intent string) {
	ensureRegistered()
	intentTotal.WithLabelValues(intent).Inc()
}

// ObserveValidationRetries records output-judge attempts spent on a query.
func ObserveValidationRetries(n int) {
	ensureRegistered()
	validationRetries.Observe(float64(n))
}

// ObserveQuery records end-to-end query latency by intent.
func ObserveQuery(intent string, start time.Time) {
	ensureRegistered()
	queryLatency.WithLabelValues(intent).Observe(float64(time.Since(start).Milliseconds()))
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		retrieverLatency, retrieverResults, fusionLists, cragVerdict,
		gatingDecision, intentTotal, validationRetries, queryLatency,
	}
}
