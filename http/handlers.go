package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"churnserve/ml"
)

// Recorder is the telemetry sink used by the prediction handler.
type Recorder interface {
	Log(ctx context.Context, record map[string]any) error
}

// Handlers carries the dependencies shared by every request. Model and
// Telemetry must be set before the handlers are registered.
type Handlers struct {
	Model     ml.Model
	Telemetry Recorder
	LabelKey  string
	Logger    *zap.Logger
}

const defaultLabelKey = "churn"

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /ping", h.handlePing)
	mux.HandleFunc("POST /invocations", h.handleInvocations)
}

// handlePing reports liveness only; it does not re-check the model.
func (h *Handlers) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": "healthy"})
}

func (h *Handlers) handleInvocations(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer("churnserve/http").Start(ctx, "invocations")
	defer span.End()

	start := time.Now()
	prediction, err := h.predict(ctx, r.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		predictionErrors.WithLabelValues(errorReason(err)).Inc()
		h.logger().Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeInternalError(w)
		return
	}
	predictionLatency.Observe(time.Since(start).Seconds())
	predictionsTotal.WithLabelValues(prediction).Inc()
	span.SetAttributes(attribute.String("prediction", prediction))

	writeJSON(w, http.StatusOK, map[string]string{"prediction": prediction})
}

// predict runs parse -> vector -> model -> telemetry. The input record is
// logged before the prediction record, and both only after the model
// answered.
func (h *Handlers) predict(ctx context.Context, body io.Reader) (string, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	features, err := ml.ParseFeatures(payload)
	if err != nil {
		return "", err
	}
	vector, err := features.Vector()
	if err != nil {
		return "", err
	}
	if err := ml.CheckShape(h.Model, vector); err != nil {
		return "", err
	}

	label, confidence, err := h.Model.Predict(vector)
	if err != nil {
		return "", fmt.Errorf("model predict: %w", err)
	}
	h.logger().Debug("prediction",
		zap.Int("label", label),
		zap.Float64("confidence", confidence),
		zap.Int("features", len(vector)))

	if err := h.Telemetry.Log(ctx, features.Record()); err != nil {
		return "", fmt.Errorf("log input: %w", err)
	}
	if err := h.Telemetry.Log(ctx, map[string]any{h.labelKey(): int64(label)}); err != nil {
		return "", fmt.Errorf("log prediction: %w", err)
	}
	return strconv.Itoa(label), nil
}

func (h *Handlers) labelKey() string {
	if h.LabelKey == "" {
		return defaultLabelKey
	}
	return h.LabelKey
}

func (h *Handlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
