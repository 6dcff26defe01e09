// Package series defines the tag sample and dataset types shared by the
// pagination engine, the live feed and the aggregator.
package series

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Value is a sample value reported by the service.
// Missing is true when the service reported null for the sample.
type Value struct {
	Float   float64
	Missing bool
}

// Number returns a present value.
func Number(v float64) Value {
	return Value{Float: v}
}

// Null returns the explicit missing marker.
func Null() Value {
	return Value{Missing: true}
}

// OrZero returns the value, or 0 when missing.
func (v Value) OrZero() float64 {
	if v.Missing {
		return 0
	}
	return v.Float
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Missing {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON implements json.Unmarshaler. JSON null decodes to the
// missing marker; numeric strings are accepted because some tag types
// are reported as text.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Number(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("sample value %s: not a number", data)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("sample value %q: %w", s, err)
	}
	*v = Number(f)
	return nil
}

// Sample is a single timestamped reading of a tag.
type Sample struct {
	Time    time.Time `json:"t"`
	Value   Value     `json:"v"`
	Quality *int      `json:"q,omitempty"`
}

// Dataset maps tag identifiers to their samples in arrival order.
type Dataset map[string][]Sample

// Merge appends every sample of fragment to d, keyed by tag.
func (d Dataset) Merge(fragment Dataset) {
	for tag, samples := range fragment {
		d[tag] = append(d[tag], samples...)
	}
}

// Tags returns the number of tags present.
func (d Dataset) Tags() int {
	return len(d)
}

// Len returns the total number of samples across all tags.
func (d Dataset) Len() int {
	n := 0
	for _, samples := range d {
		n += len(samples)
	}
	return n
}

// Values returns the values recorded for tag, and false when the tag is
// absent from the dataset.
func (d Dataset) Values(tag string) ([]Value, bool) {
	samples, ok := d[tag]
	if !ok {
		return nil, false
	}
	values := make([]Value, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values, true
}
