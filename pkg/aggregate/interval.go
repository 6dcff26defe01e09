// Package aggregate reduces a fetched dataset to scalar plant metrics:
// the totalizer and run-hours above a threshold.
package aggregate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidInterval is returned for an interval that is not "<integer> <unit>".
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrUnknownTag is returned when the requested tag is not in the dataset.
	ErrUnknownTag = errors.New("unknown tag")
)

var intervalPattern = regexp.MustCompile(`^(\d+)\s+(\w+)$`)

// hoursPerUnit converts an interval unit to hours.
var hoursPerUnit = map[string]float64{
	"second":  1.0 / 3600,
	"seconds": 1.0 / 3600,
	"minute":  1.0 / 60,
	"minutes": 1.0 / 60,
	"hour":    1,
	"hours":   1,
	"day":     24,
	"days":    24,
	"week":    24 * 7,
	"weeks":   24 * 7,
}

// Interval is a parsed sampling interval such as "15 minutes".
type Interval struct {
	Count int
	Unit  string
	hours float64
}

// ParseInterval parses "<integer> <unit>" where unit is second(s),
// minute(s), hour(s), day(s) or week(s), case-insensitive.
func ParseInterval(s string) (Interval, error) {
	match := intervalPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return Interval{}, fmt.Errorf("%w %q: want \"<integer> <unit>\", e.g. \"15 minutes\"", ErrInvalidInterval, s)
	}

	count, err := strconv.Atoi(match[1])
	if err != nil {
		return Interval{}, fmt.Errorf("%w %q: %v", ErrInvalidInterval, s, err)
	}

	unit := strings.ToLower(match[2])
	factor, ok := hoursPerUnit[unit]
	if !ok {
		return Interval{}, fmt.Errorf("%w %q: unit must be second(s), minute(s), hour(s), day(s) or week(s)", ErrInvalidInterval, s)
	}

	return Interval{Count: count, Unit: unit, hours: float64(count) * factor}, nil
}

// Hours returns the interval as fractional hours.
func (i Interval) Hours() float64 {
	return i.hours
}

// Duration returns the interval as a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.hours * float64(time.Hour))
}

// String implements fmt.Stringer.
func (i Interval) String() string {
	return fmt.Sprintf("%d %s", i.Count, i.Unit)
}

// IntervalHours parses s and returns it in hours.
func IntervalHours(s string) (float64, error) {
	i, err := ParseInterval(s)
	if err != nil {
		return 0, err
	}
	return i.Hours(), nil
}
