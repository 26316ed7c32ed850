// internal/predict/metrics.go
package predict

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports pre-warming counters. A nil *Metrics records nothing.
type Metrics struct {
	requests       prometheus.Counter
	attempts       prometheus.Counter
	successes      prometheus.Counter
	predictionHits prometheus.Counter
	predictions    prometheus.Histogram
}

// NewMetrics creates the prediction metrics and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_predict_requests_total",
			Help: "Requests recorded by the pattern tracker",
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_prewarm_attempts_total",
			Help: "Pre-warm fetches started",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_prewarm_success_total",
			Help: "Pre-warm fetches that completed without error",
		}),
		predictionHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spancache_prediction_hits_total",
			Help: "Cache hits served from a pre-warmed entry",
		}),
		predictions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spancache_predictions_returned",
			Help:    "Number of candidates returned per prediction",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.attempts, m.successes, m.predictionHits, m.predictions)
	}
	return m
}

func (m *Metrics) recordRequest() {
	if m != nil {
		m.requests.Inc()
	}
}

func (m *Metrics) recordAttempt(success bool) {
	if m == nil {
		return
	}
	m.attempts.Inc()
	if success {
		m.successes.Inc()
	}
}

func (m *Metrics) recordPredictionHit() {
	if m != nil {
		m.predictionHits.Inc()
	}
}

func (m *Metrics) observePredictions(n int) {
	if m != nil {
		m.predictions.Observe(float64(n))
	}
}
