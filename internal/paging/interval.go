package paging

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnsupportedInterval is returned for interval keys outside the supported set.
var ErrUnsupportedInterval = errors.New("paging: unsupported interval")

// Interval identifies a kline sampling interval using the exchange key ("1m", "1h", ...).
type Interval string

// Supported intervals.
const (
	Minute         Interval = "1m"
	ThreeMinutes   Interval = "3m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	Hour           Interval = "1h"
	TwoHours       Interval = "2h"
	FourHours      Interval = "4h"
	SixHours       Interval = "6h"
	EightHours     Interval = "8h"
	TwelveHours    Interval = "12h"
	Day            Interval = "1d"
	ThreeDays      Interval = "3d"
	Week           Interval = "1w"
)

var intervalDurations = map[Interval]time.Duration{
	Minute:         time.Minute,
	ThreeMinutes:   3 * time.Minute,
	FiveMinutes:    5 * time.Minute,
	FifteenMinutes: 15 * time.Minute,
	ThirtyMinutes:  30 * time.Minute,
	Hour:           time.Hour,
	TwoHours:       2 * time.Hour,
	FourHours:      4 * time.Hour,
	SixHours:       6 * time.Hour,
	EightHours:     8 * time.Hour,
	TwelveHours:    12 * time.Hour,
	Day:            24 * time.Hour,
	ThreeDays:      72 * time.Hour,
	Week:           7 * 24 * time.Hour,
}

// ParseInterval normalises user input into a supported Interval.
func ParseInterval(input string) (Interval, error) {
	key := Interval(strings.TrimSpace(input))
	if _, ok := intervalDurations[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedInterval, input)
	}
	return key, nil
}

// Duration returns the fixed span of one sample. Zero for unsupported intervals.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Valid reports whether i belongs to the supported set.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

func (i Interval) String() string {
	return string(i)
}

// SupportedIntervals returns all interval keys ordered by duration.
func SupportedIntervals() []Interval {
	keys := make([]Interval, 0, len(intervalDurations))
	for k := range intervalDurations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		return intervalDurations[keys[a]] < intervalDurations[keys[b]]
	})
	return keys
}
