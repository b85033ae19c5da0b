package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestColumnProfileNumeric(t *testing.T) {
	column := newColumnProfile(4)
	for _, v := range []any{int64(1), 2.0, int64(3), nil, true} {
		column.Track(v)
	}
	summary := column.Summary()
	if summary.Count != 5 {
		t.Fatalf("expected count 5, got %d", summary.Count)
	}
	want := TypeCounts{Integral: 2, Fractional: 1, Boolean: 1, Null: 1}
	if summary.Types != want {
		t.Fatalf("unexpected type counts: %+v", summary.Types)
	}
	if summary.Numeric == nil {
		t.Fatal("expected numeric summary")
	}
	if summary.Numeric.Min != 1 || summary.Numeric.Max != 3 || summary.Numeric.Mean != 2 {
		t.Fatalf("unexpected numeric summary: %+v", summary.Numeric)
	}
	if math.Abs(summary.Numeric.StdDev-1) > 1e-9 {
		t.Fatalf("expected stddev 1, got %f", summary.Numeric.StdDev)
	}
}

func TestColumnProfileNaNSkipsMoments(t *testing.T) {
	column := newColumnProfile(4)
	column.Track(math.NaN())
	column.Track(5.0)
	summary := column.Summary()
	if summary.Types.Fractional != 2 {
		t.Fatalf("expected 2 fractional values, got %d", summary.Types.Fractional)
	}
	if summary.Numeric.Count != 1 || summary.Numeric.Mean != 5 {
		t.Fatalf("unexpected numeric summary: %+v", summary.Numeric)
	}
}

func TestColumnProfileFrequentItemsBounded(t *testing.T) {
	column := newColumnProfile(2)
	for _, v := range []string{"a", "b", "a", "c", "a"} {
		column.Track(v)
	}
	summary := column.Summary()
	if summary.Types.String != 5 {
		t.Fatalf("expected 5 strings, got %d", summary.Types.String)
	}
	if len(summary.FrequentItems) != 2 {
		t.Fatalf("expected 2 tracked items, got %+v", summary.FrequentItems)
	}
	if summary.FrequentItems[0] != (ItemCount{Value: "a", Count: 3}) {
		t.Fatalf("unexpected top item: %+v", summary.FrequentItems[0])
	}
	if summary.FrequentItems[1] != (ItemCount{Value: "c", Count: 2}) {
		t.Fatalf("expected c to inherit the evicted count, got %+v", summary.FrequentItems)
	}
}

func TestColumnProfileKeepsHeavyHitter(t *testing.T) {
	column := newColumnProfile(2)
	for i := 0; i < 100; i++ {
		column.Track("A")
	}
	column.Track("B")
	column.Track("C")

	items := column.Summary().FrequentItems
	if len(items) != 2 {
		t.Fatalf("expected 2 tracked items, got %+v", items)
	}
	if items[0] != (ItemCount{Value: "A", Count: 100}) {
		t.Fatalf("expected heavy hitter to survive, got %+v", items)
	}
	if items[1] != (ItemCount{Value: "C", Count: 2}) {
		t.Fatalf("expected C to replace B with count 2, got %+v", items)
	}
}

func TestDatasetProfileMerge(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	left := NewDatasetProfile("churn", "s1", ts, 2)
	right := NewDatasetProfile("churn", "s1", ts, 2)
	for _, v := range []float64{1, 2, 3} {
		left.Track(map[string]any{"x": v, "plan": "basic"})
	}
	for _, v := range []float64{4, 5} {
		right.Track(map[string]any{"x": v, "plan": "pro", "churn": int64(1)})
	}

	left.Merge(right)
	summary := left.Summary()
	if summary.RecordCount != 5 {
		t.Fatalf("expected 5 records, got %d", summary.RecordCount)
	}
	x := summary.Columns["x"].Numeric
	if x.Count != 5 || x.Mean != 3 || x.Min != 1 || x.Max != 5 {
		t.Fatalf("unexpected merged numeric summary: %+v", x)
	}
	if math.Abs(x.StdDev-math.Sqrt(2.5)) > 1e-9 {
		t.Fatalf("unexpected merged stddev: %v", x.StdDev)
	}
	items := summary.Columns["plan"].FrequentItems
	if len(items) != 2 || items[0] != (ItemCount{Value: "basic", Count: 3}) {
		t.Fatalf("unexpected merged items: %+v", items)
	}
	if summary.Columns["churn"].Types.Integral != 2 {
		t.Fatalf("expected new column to be merged, got %+v", summary.Columns["churn"])
	}
}

func TestDatasetProfileTrack(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	profile := NewDatasetProfile("churn", "s1", ts, 0)
	profile.Track(map[string]any{"a": 1.0, "b": 2.0})
	profile.Track(map[string]any{"churn": int64(0)})

	summary := profile.Summary()
	if summary.RecordCount != 2 {
		t.Fatalf("expected 2 records, got %d", summary.RecordCount)
	}
	if len(summary.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(summary.Columns))
	}
	if summary.Columns["churn"].Types.Integral != 1 {
		t.Fatalf("unexpected churn column: %+v", summary.Columns["churn"])
	}
	if !summary.DatasetTimestamp.Equal(ts) || summary.Dataset != "churn" || summary.SessionID != "s1" {
		t.Fatalf("unexpected profile metadata: %+v", summary)
	}
}
