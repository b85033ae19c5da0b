package ml

import (
	"errors"
	"fmt"
)

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrShapeMismatch    = errors.New("feature vector shape mismatch")
	ErrUnsupportedModel = errors.New("unsupported model type")
)

// Model is a loaded classifier. Implementations are read-only after Load
// and safe for concurrent Predict calls.
type Model interface {
	Predict(features []float64) (int, float64, error)
	// NumFeatures reports the expected vector length, or 0 when the
	// artifact does not declare one.
	NumFeatures() int
}

type MLModel interface {
	Model
	Save(path string) error
	Load(path string) error
}

// CheckShape verifies a single-row vector against the model's declared width.
func CheckShape(model Model, features []float64) error {
	if len(features) == 0 {
		return ErrShapeMismatch
	}
	n := model.NumFeatures()
	if n > 0 && len(features) != n {
		return &ShapeError{Expected: n, Got: len(features)}
	}
	return nil
}

type ShapeError struct {
	Expected int
	Got      int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("feature vector shape mismatch: expected %d features, got %d", e.Expected, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }
