package ml

import (
	"reflect"
	"strings"
	"testing"
)

const churnCSV = `tenure,churn,monthly_charges
1,1,70.5
24,0,20
3,1,80
36,0,25.5
`

func TestReadCSVDataset(t *testing.T) {
	ds, err := ReadCSVDataset(strings.NewReader(churnCSV), "churn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"tenure", "monthly_charges"}; !reflect.DeepEqual(ds.Names, want) {
		t.Fatalf("expected names %v, got %v", want, ds.Names)
	}
	if want := []int{1, 0, 1, 0}; !reflect.DeepEqual(ds.Labels, want) {
		t.Fatalf("expected labels %v, got %v", want, ds.Labels)
	}
	if want := []float64{1, 70.5}; !reflect.DeepEqual(ds.Features[0], want) {
		t.Fatalf("expected first row %v, got %v", want, ds.Features[0])
	}
}

func TestReadCSVDatasetErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"missing label", "a,b\n1,2\n"},
		{"non numeric", "a,churn\nx,1\n"},
		{"no rows", "a,churn\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSVDataset(strings.NewReader(tt.csv), "churn"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTrainAndEvaluate(t *testing.T) {
	ds, err := ReadCSVDataset(strings.NewReader(churnCSV), "churn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model := NewDecisionTree(3)
	if err := model.Train(ds.Features, ds.Labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	accuracy, precision, recall := Evaluate(model, ds, 1)
	if accuracy != 1 || precision != 1 || recall != 1 {
		t.Fatalf("expected a perfect fit on training data, got %s", Report(accuracy, precision, recall))
	}
}

func TestSplit(t *testing.T) {
	ds, err := ReadCSVDataset(strings.NewReader(churnCSV), "churn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	train, test := ds.Split(0.25)
	if len(train.Features) != 3 || len(test.Features) != 1 {
		t.Fatalf("unexpected split sizes %d/%d", len(train.Features), len(test.Features))
	}
}
