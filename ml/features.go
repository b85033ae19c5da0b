package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEncoding = errors.New("request body is not valid UTF-8")
	ErrNotObject       = errors.New("request body must be a JSON object")
	ErrNotNumeric      = errors.New("feature value is not numeric")
	ErrMalformed       = errors.New("malformed JSON request")
)

// Feature is one named request value, kept as decoded.
type Feature struct {
	Name  string
	Value any
}

// Features preserves the order in which keys appear in the request
// document. A repeated key keeps its first position and its last value.
type Features []Feature

func ParseFeatures(body []byte) (Features, error) {
	if !utf8.Valid(body) {
		return nil, ErrInvalidEncoding
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	features := make(Features, 0)
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, ErrNotObject
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: feature %q: %w", ErrMalformed, name, err)
		}
		if i, seen := index[name]; seen {
			features[i].Value = value
			continue
		}
		index[name] = len(features)
		features = append(features, Feature{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformed)
	}
	return features, nil
}

// Vector coerces every value to float64, in document order.
func (f Features) Vector() ([]float64, error) {
	vector := make([]float64, len(f))
	for i, feature := range f {
		value, err := ToFloat(feature.Value)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", feature.Name, err)
		}
		vector[i] = value
	}
	return vector, nil
}

// Record returns the features as a plain mapping. JSON numbers become
// int64 when they are written as integers and float64 otherwise.
func (f Features) Record() map[string]any {
	record := make(map[string]any, len(f))
	for _, feature := range f {
		record[feature.Name] = plainValue(feature.Value)
	}
	return record
}

func (f Features) Names() []string {
	names := make([]string, len(f))
	for i, feature := range f {
		names[i] = feature.Name
	}
	return names
}

// ToFloat accepts numbers, numeric strings (surrounding whitespace allowed)
// and booleans.
func ToFloat(value any) (float64, error) {
	switch v := value.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s", ErrNotNumeric, v)
		}
		return f, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: null", ErrNotNumeric)
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, value)
	}
}

func plainValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if !strings.ContainsAny(string(v), ".eE") {
			if i, err := v.Int64(); err == nil {
				return i
			}
		}
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	default:
		return value
	}
}
