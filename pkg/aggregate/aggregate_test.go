package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/Sternrassler/axiom-client/pkg/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataset(tag string, values ...series.Value) series.Dataset {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]series.Sample, len(values))
	for i, v := range values {
		samples[i] = series.Sample{Time: start.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return series.Dataset{tag: samples}
}

func numbers(vs ...float64) []series.Value {
	out := make([]series.Value, len(vs))
	for i, v := range vs {
		out[i] = series.Number(v)
	}
	return out
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input     string
		wantHours float64
		wantErr   bool
	}{
		{input: "1 hour", wantHours: 1},
		{input: "12 hours", wantHours: 12},
		{input: "30 minutes", wantHours: 0.5},
		{input: "1 minute", wantHours: 1.0 / 60},
		{input: "3600 seconds", wantHours: 1},
		{input: "10 second", wantHours: 10.0 / 3600},
		{input: "2 days", wantHours: 48},
		{input: "1 Week", wantHours: 168},
		{input: "1 HOUR", wantHours: 1},
		{input: "  5 minutes  ", wantHours: 5.0 / 60},
		{input: "ten hours", wantErr: true},
		{input: "10 fortnights", wantErr: true},
		{input: "10hours", wantErr: true},
		{input: "1.5 hours", wantErr: true},
		{input: "-1 hour", wantErr: true},
		{input: "", wantErr: true},
		{input: "1 hour 30 minutes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantHours, got.Hours(), 1e-12)
		})
	}
}

func TestInterval_DurationAndString(t *testing.T) {
	i, err := ParseInterval("15 Minutes")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, i.Duration())
	assert.Equal(t, "15 minutes", i.String())
}

func TestTotalize(t *testing.T) {
	ds := dataset("T1", numbers(1, 2, 3, 4)...)

	got, err := Totalize(ds, "T1", "1 hour")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	got, err = Totalize(ds, "T1", "30 minutes")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
}

func TestTotalize_Floors(t *testing.T) {
	ds := dataset("T1", numbers(1.9, 1.9)...)

	got, err := Totalize(ds, "T1", "1 hour")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	neg := dataset("T1", numbers(-0.5)...)
	got, err = Totalize(neg, "T1", "1 hour")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestTotalize_Errors(t *testing.T) {
	ds := dataset("T1", numbers(1, 2)...)

	_, err := Totalize(ds, "T1", "ten hours")
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = Totalize(ds, "T2", "1 hour")
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestTotalize_MissingCountsAsZero(t *testing.T) {
	ds := dataset("T1", series.Number(4), series.Null(), series.Number(6))

	got, err := Totalize(ds, "T1", "1 hour")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	// The dataset itself keeps the marker.
	values, _ := ds.Values("T1")
	assert.True(t, values[1].Missing)
}

func TestTotalize_EmptyTag(t *testing.T) {
	ds := series.Dataset{"T1": {}}

	got, err := Totalize(ds, "T1", "1 hour")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestRunTimeAboveThreshold(t *testing.T) {
	ds := dataset("T1", numbers(5, 15, 25, 5)...)

	got, err := RunTimeAboveThreshold(ds, "T1", "1 hour", 10)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
	assert.Equal(t, "2.00", FormatHours(got))
}

func TestRunTimeAboveThreshold_StrictlyGreater(t *testing.T) {
	ds := dataset("T1", numbers(10, 10, 10.01)...)

	got, err := RunTimeAboveThreshold(ds, "T1", "15 minutes", 10)
	require.NoError(t, err)
	assert.Equal(t, 0.25, got)
	assert.Equal(t, "0.25", FormatHours(got))
}

func TestRunTimeAboveThreshold_RoundsToTwoDecimals(t *testing.T) {
	ds := dataset("T1", numbers(1, 1, 1)...)

	got, err := RunTimeAboveThreshold(ds, "T1", "1 minute", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.05, got)
	assert.False(t, math.IsNaN(got))
}

func TestRunTimeAboveThreshold_MissingNeverCounts(t *testing.T) {
	ds := dataset("T1", series.Null(), series.Number(20))

	got, err := RunTimeAboveThreshold(ds, "T1", "1 hour", -1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestRunTimeAboveThreshold_Errors(t *testing.T) {
	ds := dataset("T1", numbers(1)...)

	_, err := RunTimeAboveThreshold(ds, "T1", "soon", 0)
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = RunTimeAboveThreshold(ds, "missing", "1 hour", 0)
	require.ErrorIs(t, err, ErrUnknownTag)
}
