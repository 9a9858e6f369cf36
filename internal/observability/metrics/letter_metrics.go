package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every metric with the emitting service and environment.
type Config struct {
	ServiceName string
	Environment string
}

// LetterMetrics tracks letter lifecycle and allowance outcomes.
type LetterMetrics struct {
	submissions   *prometheus.CounterVec
	reviews       *prometheus.CounterVec
	deductions    *prometheus.CounterVec
	reviewLatency prometheus.Histogram
}

var (
	letterMetricsOnce sync.Once
	letterMetrics     *LetterMetrics
)

func Letters() *LetterMetrics {
	return LettersWithConfig(Config{})
}

func LettersWithConfig(cfg Config) *LetterMetrics {
	letterMetricsOnce.Do(func() {
		letterMetrics = newLetterMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return letterMetrics
}

func ResetLetterMetricsForTest() {
	letterMetricsOnce = sync.Once{}
	letterMetrics = nil
}

func newLetterMetrics(registerer prometheus.Registerer, cfg Config) *LetterMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "letterflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	submissions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "letterflow_letter_submissions_total",
			Help:        "Letter submissions by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // accepted | exhausted | conflict | failed
	)

	reviews := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "letterflow_review_decisions_total",
			Help:        "Admin review decisions applied to letters.",
			ConstLabels: constLabels,
		},
		[]string{"decision"}, // started | approved | rejected | completed
	)

	deductions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "letterflow_allowance_deductions_total",
			Help:        "Allowance ledger deduction attempts by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // deducted | exhausted | trial | unlimited
	)

	reviewLatency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "letterflow_review_latency_seconds",
			Help: "Time between letter submission and the review decision.",
			Buckets: []float64{
				300,    // 5m
				3600,   // 1h
				14400,  // 4h
				43200,  // 12h
				86400,  // 24h (review SLA boundary)
				172800, // 48h
			},
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		submissions,
		reviews,
		deductions,
		reviewLatency,
	)

	return &LetterMetrics{
		submissions:   submissions,
		reviews:       reviews,
		deductions:    deductions,
		reviewLatency: reviewLatency,
	}
}

func (m *LetterMetrics) IncSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *LetterMetrics) IncReviewDecision(decision string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(decision).Inc()
}

func (m *LetterMetrics) IncDeduction(result string) {
	if m == nil {
		return
	}
	m.deductions.WithLabelValues(result).Inc()
}

func (m *LetterMetrics) ObserveReviewLatency(latency time.Duration) {
	if m == nil || latency < 0 {
		return
	}
	m.reviewLatency.Observe(latency.Seconds())
}
