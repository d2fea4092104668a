// Package metrics holds the pure parts of aggregation: time bucketing,
// dimension keys and per-type combine policies.
package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type Period string

const (
	Hourly  Period = "hourly"
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

func (p Period) rank() int {
	switch p {
	case Hourly:
		return 1
	case Daily:
		return 2
	case Weekly:
		return 3
	case Monthly:
		return 4
	default:
		return 0
	}
}

func (p Period) Valid() bool { return p.rank() > 0 }

func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// ParseInterval accepts the query names hour, day, week and month.
func ParseInterval(s string) (Period, error) {
	switch s {
	case "", "day":
		return Daily, nil
	case "hour":
		return Hourly, nil
	case "week":
		return Weekly, nil
	case "month":
		return Monthly, nil
	}
	return "", fmt.Errorf("interval must be one of hour, day, week, month")
}

// CanRollInto reports whether records of period p fold cleanly into
// buckets of period q. Weeks straddle months, so weekly never rolls into
// monthly.
func (p Period) CanRollInto(q Period) bool {
	if !p.Valid() || !q.Valid() || p.rank() > q.rank() {
		return false
	}
	return !(p == Weekly && q == Monthly)
}

// Truncate returns the UTC start of the bucket containing t. Weeks start
// on Monday.
func Truncate(t time.Time, p Period) time.Time {
	t = t.UTC()
	switch p {
	case Hourly:
		return t.Truncate(time.Hour)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Next returns the start of the bucket after the one starting at start.
func Next(start time.Time, p Period) time.Time {
	switch p {
	case Hourly:
		return start.Add(time.Hour)
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	}
	return start
}

// Buckets lists every bucket start from trunc(start) to trunc(end)
// inclusive. It returns an error when the range is inverted or exceeds
// limit buckets.
func Buckets(start, end time.Time, p Period, limit int) ([]time.Time, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown period %q", p)
	}
	first := Truncate(start, p)
	last := Truncate(end, p)
	if last.Before(first) {
		return nil, fmt.Errorf("end is before start")
	}
	var out []time.Time
	for b := first; !b.After(last); b = Next(b, p) {
		if len(out) >= limit {
			return nil, fmt.Errorf("range spans more than %d buckets", limit)
		}
		out = append(out, b)
	}
	return out, nil
}

// DimensionKey is the canonical form of dims used in the aggregation key:
// JSON with sorted keys, "{}" for none.
func DimensionKey(dims map[string]string) string {
	if len(dims) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(dims[k])
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return string(buf)
}
