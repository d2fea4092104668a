package metrics

import "time"

// Sample is one stored record reduced to what a timeseries needs.
type Sample struct {
	PeriodStart time.Time
	Value       float64
}

// Point is one bucket of a timeseries.
type Point struct {
	Start time.Time
	Value float64
}

// Fold assigns samples to buckets of the given interval and merges them
// with c. Buckets without samples are zero. Replace keeps the sample with
// the latest PeriodStart.
func Fold(buckets []time.Time, interval Period, samples []Sample, c Combine) []Point {
	type acc struct {
		value  float64
		latest time.Time
		seen   bool
	}
	byStart := make(map[int64]*acc, len(buckets))
	for _, b := range buckets {
		byStart[b.Unix()] = &acc{}
	}

	for _, s := range samples {
		a, ok := byStart[Truncate(s.PeriodStart, interval).Unix()]
		if !ok {
			continue
		}
		switch {
		case !a.seen:
			a.value = s.Value
			a.latest = s.PeriodStart
		case c == Replace:
			if !s.PeriodStart.Before(a.latest) {
				a.value = s.Value
				a.latest = s.PeriodStart
			}
		default:
			a.value = c.Apply(a.value, s.Value)
		}
		a.seen = true
	}

	points := make([]Point, len(buckets))
	for i, b := range buckets {
		points[i] = Point{Start: b, Value: byStart[b.Unix()].value}
	}
	return points
}
