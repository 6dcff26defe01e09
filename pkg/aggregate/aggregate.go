package aggregate

import (
	"fmt"
	"math"

	"github.com/Sternrassler/axiom-client/pkg/series"
)

// Totalize sums the values of tag, treating missing values as zero,
// scales the sum by the sampling interval in hours and floors the result.
func Totalize(ds series.Dataset, tag string, interval string) (int64, error) {
	hours, err := IntervalHours(interval)
	if err != nil {
		return 0, err
	}
	values, err := tagValues(ds, tag)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, v := range values {
		sum += v.OrZero()
	}
	return int64(math.Floor(sum * hours)), nil
}

// RunTimeAboveThreshold returns the hours during which tag strictly
// exceeded threshold, counting one sampling interval per sample and
// rounding to two decimals. Missing values never count.
func RunTimeAboveThreshold(ds series.Dataset, tag string, interval string, threshold float64) (float64, error) {
	hours, err := IntervalHours(interval)
	if err != nil {
		return 0, err
	}
	values, err := tagValues(ds, tag)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, v := range values {
		if !v.Missing && v.Float > threshold {
			count++
		}
	}
	return math.Round(float64(count)*hours*100) / 100, nil
}

// FormatHours renders hours with two decimals, e.g. "2.00".
func FormatHours(hours float64) string {
	return fmt.Sprintf("%.2f", hours)
}

func tagValues(ds series.Dataset, tag string) ([]series.Value, error) {
	values, ok := ds.Values(tag)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTag, tag)
	}
	return values, nil
}
