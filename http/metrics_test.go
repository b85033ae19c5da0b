package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"churnserve/ml"
	"churnserve/telemetry"
)

func TestErrorReason(t *testing.T) {
	parse := func(body string) error {
		_, err := ml.ParseFeatures([]byte(body))
		return err
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"truncated", parse(`{"a": `), "decode"},
		{"trailing data", parse(`{"a": 1} x`), "decode"},
		{"not an object", parse(`[1]`), "decode"},
		{"bad encoding", parse("{\"a\xff\": 1}"), "decode"},
		{"non numeric", fmt.Errorf("feature %q: %w", "a", ml.ErrNotNumeric), "non_numeric"},
		{"shape", &ml.ShapeError{Expected: 3, Got: 1}, "shape"},
		{"body too large", fmt.Errorf("read body: %w", &http.MaxBytesError{Limit: 16}), "body_too_large"},
		{"telemetry", fmt.Errorf("log input: %w", telemetry.ErrSessionClosed), "telemetry"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorReason(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q (%v)", tt.want, got, tt.err)
			}
		})
	}
}
