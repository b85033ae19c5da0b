package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dataset is a labelled feature matrix read from a CSV export.
type Dataset struct {
	Names    []string
	Features [][]float64
	Labels   []int
}

// ReadCSVDataset reads a header row followed by numeric rows. The column
// named labelColumn becomes the label; every other column is a feature, in
// header order.
func ReadCSVDataset(r io.Reader, labelColumn string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	labelIdx := -1
	ds := &Dataset{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == labelColumn {
			labelIdx = i
			continue
		}
		ds.Names = append(ds.Names, name)
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found", labelColumn)
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		vector := make([]float64, 0, len(row)-1)
		var label int
		for i, cell := range row {
			v, err := ToFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			if i == labelIdx {
				label = int(v)
				continue
			}
			vector = append(vector, v)
		}
		ds.Features = append(ds.Features, vector)
		ds.Labels = append(ds.Labels, label)
	}
	if len(ds.Features) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return ds, nil
}

// Split keeps the first (1-testRatio) share of rows for training.
func (d *Dataset) Split(testRatio float64) (train, test *Dataset) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	split := int(float64(len(d.Features)) * (1 - testRatio))
	train = &Dataset{Names: d.Names, Features: d.Features[:split], Labels: d.Labels[:split]}
	test = &Dataset{Names: d.Names, Features: d.Features[split:], Labels: d.Labels[split:]}
	return train, test
}

// Evaluate scores model on d, treating positive as the positive class.
func Evaluate(model Model, d *Dataset, positive int) (accuracy, precision, recall float64) {
	if len(d.Features) == 0 {
		return 0, 0, 0
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, vector := range d.Features {
		label, _, err := model.Predict(vector)
		if err != nil {
			continue
		}
		if label == d.Labels[i] {
			correct++
		}
		if label == positive {
			predictedPositive++
		}
		if d.Labels[i] == positive {
			actualPositive++
			if label == positive {
				truePositive++
			}
		}
	}

	accuracy = float64(correct) / float64(len(d.Features))
	if predictedPositive > 0 {
		precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		recall = float64(truePositive) / float64(actualPositive)
	}
	return accuracy, precision, recall
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Report renders Evaluate's output for command line tools.
func Report(accuracy, precision, recall float64) string {
	return "accuracy=" + formatMetric(accuracy) +
		" precision=" + formatMetric(precision) +
		" recall=" + formatMetric(recall)
}
