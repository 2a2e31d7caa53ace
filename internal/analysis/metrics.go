package analysis

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/ocr-analytics/internal/classify"
	"github.com/zombor/ocr-analytics/internal/ocr"
)

const metricsNamespace = "ocr_analytics"

// Metrics records analysis outcomes on a private registry
type Metrics struct {
	registry        *prometheus.Registry
	analyses        *prometheus.CounterVec
	classifiedLines *prometheus.CounterVec
	duration        prometheus.Histogram
}

// NewMetrics creates and registers the analysis collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analyses_total",
			Help:      "Number of image analyses by outcome.",
		}, []string{"outcome"}),
		classifiedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "classified_lines_total",
			Help:      "Number of OCR lines classified, by category.",
		}, []string{"category"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analyze_duration_seconds",
			Help:      "Time spent acquiring OCR results from the provider.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
	}
	m.registry.MustRegister(m.analyses, m.classifiedLines, m.duration)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(err error, took time.Duration, categories classify.Categorized) {
	m.analyses.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	m.duration.Observe(took.Seconds())
	for category, lines := range categories {
		m.classifiedLines.WithLabelValues(string(category)).Add(float64(len(lines)))
	}
}

func outcome(err error) string {
	var (
		unsupported *ocr.UnsupportedInputError
		submission  *ocr.SubmissionError
		failed      *ocr.AnalysisFailedError
	)
	switch {
	case err == nil:
		return "succeeded"
	case errors.As(err, &unsupported):
		return "unsupported_input"
	case errors.As(err, &failed):
		return "analysis_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &submission):
		return "submission_error"
	default:
		return "error"
	}
}
