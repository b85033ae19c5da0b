package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const TypeLogisticRegression = "logistic_regression"

// LogisticRegression is a linear classifier exported as coefficients.
// One coefficient row means a binary model scored with a sigmoid; k rows
// mean k classes scored with a softmax.
type LogisticRegression struct {
	coef      [][]float64
	intercept []float64
	classes   []int
}

type logisticArtifact struct {
	Type      string      `json:"type"`
	NFeatures int         `json:"n_features,omitempty"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	Classes   []int       `json:"classes,omitempty"`
}

func NewLogisticRegression(coef [][]float64, intercept []float64, classes []int) (*LogisticRegression, error) {
	lr := &LogisticRegression{}
	if err := lr.set(logisticArtifact{Coef: coef, Intercept: intercept, Classes: classes}); err != nil {
		return nil, err
	}
	return lr, nil
}

func (lr *LogisticRegression) NumFeatures() int {
	if len(lr.coef) == 0 {
		return 0
	}
	return len(lr.coef[0])
}

func (lr *LogisticRegression) Predict(features []float64) (int, float64, error) {
	if len(lr.coef) == 0 {
		return 0, 0, ErrNotTrained
	}
	if err := CheckShape(lr, features); err != nil {
		return 0, 0, err
	}

	if len(lr.coef) == 1 {
		p := sigmoid(dot(lr.coef[0], features) + lr.intercept[0])
		if p > 0.5 {
			return lr.classes[1], p, nil
		}
		return lr.classes[0], 1 - p, nil
	}

	scores := make([]float64, len(lr.coef))
	best := 0
	for i, row := range lr.coef {
		scores[i] = dot(row, features) + lr.intercept[i]
		if scores[i] > scores[best] {
			best = i
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - scores[best])
	}
	return lr.classes[best], 1 / sum, nil
}

func (lr *LogisticRegression) Save(path string) error {
	if len(lr.coef) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(logisticArtifact{
		Type:      TypeLogisticRegression,
		NFeatures: lr.NumFeatures(),
		Coef:      lr.coef,
		Intercept: lr.intercept,
		Classes:   lr.classes,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (lr *LogisticRegression) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact logisticArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode logistic regression %s: %w", path, err)
	}
	if artifact.Type != "" && artifact.Type != TypeLogisticRegression {
		return fmt.Errorf("artifact type %q: %w", artifact.Type, ErrUnsupportedModel)
	}
	return lr.set(artifact)
}

func (lr *LogisticRegression) set(artifact logisticArtifact) error {
	if len(artifact.Coef) == 0 {
		return ErrNotTrained
	}
	width := len(artifact.Coef[0])
	if width == 0 {
		return errors.New("coefficient rows are empty")
	}
	for _, row := range artifact.Coef {
		if len(row) != width {
			return errors.New("coefficient rows differ in length")
		}
	}
	if artifact.NFeatures != 0 && artifact.NFeatures != width {
		return &ShapeError{Expected: artifact.NFeatures, Got: width}
	}
	if len(artifact.Intercept) != len(artifact.Coef) {
		return fmt.Errorf("expected %d intercepts, got %d", len(artifact.Coef), len(artifact.Intercept))
	}

	classCount := len(artifact.Coef)
	if classCount == 1 {
		classCount = 2
	}
	classes := artifact.Classes
	if len(classes) == 0 {
		classes = make([]int, classCount)
		for i := range classes {
			classes[i] = i
		}
	}
	if len(classes) != classCount {
		return fmt.Errorf("expected %d classes, got %d", classCount, len(classes))
	}

	lr.coef = artifact.Coef
	lr.intercept = artifact.Intercept
	lr.classes = classes
	return nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
