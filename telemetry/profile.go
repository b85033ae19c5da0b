package telemetry

import (
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TypeCounts tallies the inferred type of every value seen in a column.
type TypeCounts struct {
	Integral   int64 `json:"integral"`
	Fractional int64 `json:"fractional"`
	Boolean    int64 `json:"boolean"`
	String     int64 `json:"string"`
	Unknown    int64 `json:"unknown"`
	Null       int64 `json:"null"`
}

type NumericSummary struct {
	Count  int64   `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

type ItemCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type ColumnSummary struct {
	Count         int64           `json:"count"`
	Types         TypeCounts      `json:"types"`
	Numeric       *NumericSummary `json:"numeric,omitempty"`
	FrequentItems []ItemCount     `json:"frequent_items,omitempty"`
}

type ProfileSummary struct {
	Dataset          string                   `json:"dataset"`
	SessionID        string                   `json:"session_id"`
	Project          string                   `json:"project,omitempty"`
	Pipeline         string                   `json:"pipeline,omitempty"`
	DatasetTimestamp time.Time                `json:"dataset_timestamp"`
	StartedAt        time.Time                `json:"started_at"`
	RecordCount      int64                    `json:"record_count"`
	Columns          map[string]ColumnSummary `json:"columns"`
}

// ColumnProfile accumulates statistics for one column. It is not safe
// for concurrent use; DatasetProfile owners serialize access.
type ColumnProfile struct {
	count int64
	types TypeCounts

	n    int64
	mean float64
	m2   float64
	min  float64
	max  float64

	capacity int
	items    *lru.Cache[string, int64]
}

func newColumnProfile(itemCapacity int) *ColumnProfile {
	// lru.New only fails for a non-positive size; NewDatasetProfile clamps it.
	items, _ := lru.New[string, int64](itemCapacity)
	return &ColumnProfile{capacity: itemCapacity, items: items}
}

func (c *ColumnProfile) Track(value any) {
	c.count++
	switch v := value.(type) {
	case nil:
		c.types.Null++
	case bool:
		c.types.Boolean++
	case string:
		c.types.String++
		c.trackItem(v)
	case int:
		c.trackIntegral(float64(v))
	case int32:
		c.trackIntegral(float64(v))
	case int64:
		c.trackIntegral(float64(v))
	case uint:
		c.trackIntegral(float64(v))
	case uint32:
		c.trackIntegral(float64(v))
	case uint64:
		c.trackIntegral(float64(v))
	case float32:
		c.types.Fractional++
		c.trackNumber(float64(v))
	case float64:
		c.types.Fractional++
		c.trackNumber(v)
	default:
		c.types.Unknown++
	}
}

func (c *ColumnProfile) trackIntegral(v float64) {
	c.types.Integral++
	c.trackNumber(v)
}

func (c *ColumnProfile) trackNumber(v float64) {
	if math.IsNaN(v) {
		return
	}
	c.n++
	if c.n == 1 {
		c.min, c.max = v, v
	} else {
		c.min = math.Min(c.min, v)
		c.max = math.Max(c.max, v)
	}
	delta := v - c.mean
	c.mean += delta / float64(c.n)
	c.m2 += delta * (v - c.mean)
}

func (c *ColumnProfile) trackItem(v string) {
	c.addItem(v, 1)
}

// addItem keeps a Space-Saving table of at most capacity values. When the
// table is full the lowest count is evicted and the newcomer starts from
// that count; ties evict the least recently seen value.
func (c *ColumnProfile) addItem(v string, n int64) {
	if count, ok := c.items.Get(v); ok {
		c.items.Add(v, count+n)
		return
	}
	if c.items.Len() < c.capacity {
		c.items.Add(v, n)
		return
	}

	var victim string
	var floor int64 = -1
	for _, key := range c.items.Keys() {
		count, ok := c.items.Peek(key)
		if ok && (floor < 0 || count < floor) {
			victim, floor = key, count
		}
	}
	c.items.Remove(victim)
	c.items.Add(v, floor+n)
}

// merge folds o into c. Moments are combined with the parallel form of
// Welford's update.
func (c *ColumnProfile) merge(o *ColumnProfile) {
	c.count += o.count
	c.types.Integral += o.types.Integral
	c.types.Fractional += o.types.Fractional
	c.types.Boolean += o.types.Boolean
	c.types.String += o.types.String
	c.types.Unknown += o.types.Unknown
	c.types.Null += o.types.Null

	if o.n > 0 {
		if c.n == 0 {
			c.n, c.mean, c.m2, c.min, c.max = o.n, o.mean, o.m2, o.min, o.max
		} else {
			n := c.n + o.n
			delta := o.mean - c.mean
			c.mean += delta * float64(o.n) / float64(n)
			c.m2 += o.m2 + delta*delta*float64(c.n)*float64(o.n)/float64(n)
			c.min = math.Min(c.min, o.min)
			c.max = math.Max(c.max, o.max)
			c.n = n
		}
	}

	for _, key := range o.items.Keys() {
		if count, ok := o.items.Peek(key); ok {
			c.addItem(key, count)
		}
	}
}

func (c *ColumnProfile) Summary() ColumnSummary {
	summary := ColumnSummary{Count: c.count, Types: c.types}
	if c.n > 0 {
		numeric := &NumericSummary{Count: c.n, Min: c.min, Max: c.max, Mean: c.mean}
		if c.n > 1 {
			numeric.StdDev = math.Sqrt(c.m2 / float64(c.n-1))
		}
		summary.Numeric = numeric
	}
	if c.items.Len() > 0 {
		items := make([]ItemCount, 0, c.items.Len())
		for _, key := range c.items.Keys() {
			if count, ok := c.items.Peek(key); ok {
				items = append(items, ItemCount{Value: key, Count: count})
			}
		}
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Count != items[j].Count {
				return items[i].Count > items[j].Count
			}
			return items[i].Value < items[j].Value
		})
		summary.FrequentItems = items
	}
	return summary
}

// DatasetProfile is the set of column profiles for one dataset window.
type DatasetProfile struct {
	name             string
	sessionID        string
	datasetTimestamp time.Time
	startedAt        time.Time
	itemCapacity     int
	records          int64
	columns          map[string]*ColumnProfile
}

func NewDatasetProfile(name, sessionID string, datasetTimestamp time.Time, itemCapacity int) *DatasetProfile {
	if itemCapacity <= 0 {
		itemCapacity = 1
	}
	return &DatasetProfile{
		name:             name,
		sessionID:        sessionID,
		datasetTimestamp: datasetTimestamp,
		startedAt:        time.Now().UTC(),
		itemCapacity:     itemCapacity,
		columns:          make(map[string]*ColumnProfile),
	}
}

func (p *DatasetProfile) Track(record map[string]any) {
	p.records++
	for name, value := range record {
		column, ok := p.columns[name]
		if !ok {
			column = newColumnProfile(p.itemCapacity)
			p.columns[name] = column
		}
		column.Track(value)
	}
}

// Merge folds the records tracked by o into p.
func (p *DatasetProfile) Merge(o *DatasetProfile) {
	p.records += o.records
	if o.startedAt.Before(p.startedAt) {
		p.startedAt = o.startedAt
	}
	for name, column := range o.columns {
		mine, ok := p.columns[name]
		if !ok {
			mine = newColumnProfile(p.itemCapacity)
			p.columns[name] = mine
		}
		mine.merge(column)
	}
}

func (p *DatasetProfile) RecordCount() int64 {
	return p.records
}

func (p *DatasetProfile) Summary() ProfileSummary {
	columns := make(map[string]ColumnSummary, len(p.columns))
	for name, column := range p.columns {
		columns[name] = column.Summary()
	}
	return ProfileSummary{
		Dataset:          p.name,
		SessionID:        p.sessionID,
		DatasetTimestamp: p.datasetTimestamp,
		StartedAt:        p.startedAt,
		RecordCount:      p.records,
		Columns:          columns,
	}
}
