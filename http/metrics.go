package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"churnserve/ml"
	"churnserve/telemetry"
)

var (
	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churnserve_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "churnserve_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churnserve_predictions_total",
		Help: "Predictions served, by label",
	}, []string{"label"})

	predictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churnserve_prediction_errors_total",
		Help: "Failed prediction requests, by reason",
	}, []string{"reason"})

	predictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "churnserve_prediction_duration_seconds",
		Help:    "Time spent parsing, predicting and logging one request",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

func recordRequest(r *http.Request, status int, elapsed time.Duration) {
	path := r.Pattern
	if path == "" {
		path = "unmatched"
	}
	requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	requestLatency.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
}

func errorReason(err error) string {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return "body_too_large"
	case errors.Is(err, ml.ErrInvalidEncoding), errors.Is(err, ml.ErrNotObject), errors.Is(err, ml.ErrMalformed):
		return "decode"
	case errors.Is(err, ml.ErrNotNumeric):
		return "non_numeric"
	case errors.Is(err, ml.ErrShapeMismatch):
		return "shape"
	case errors.Is(err, telemetry.ErrSessionClosed):
		return "telemetry"
	default:
		return "other"
	}
}
