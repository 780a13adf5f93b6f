package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// FilterSources keeps the records whose source is one of sources. With no
// sources the series is returned unchanged.
func FilterSources(s Series, sources ...string) Series {
	if len(sources) == 0 {
		return s.clone()
	}
	keep := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		keep[src] = struct{}{}
	}
	out := s.clone()
	out.Records = out.Records[:0:0]
	for _, r := range s.Records {
		if _, ok := keep[r.Source]; ok {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Sources lists the distinct non-empty source names in order of first appearance.
func Sources(s Series) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, r := range s.Records {
		if r.Source == "" {
			continue
		}
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}

// FilterDateRange keeps records whose calendar date lies in [from, to]. A zero
// bound is open. When any bound is set, records without a parsed timestamp are
// dropped because they cannot satisfy it.
func FilterDateRange(s Series, from, to time.Time) Series {
	s = ensureNormalized(s)
	if from.IsZero() && to.IsZero() {
		return s.clone()
	}
	if !from.IsZero() {
		from = FloorDay(from)
	}
	if !to.IsZero() {
		to = FloorDay(to)
	}
	out := s.clone()
	out.Records = out.Records[:0:0]
	for _, r := range s.Records {
		if !r.Parsed {
			continue
		}
		d := r.Calendar.Date
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		out.Records = append(out.Records, r)
	}
	return out
}

// FilterLookback keeps the calendar days covered by lookback, counted back
// from the latest date present in s rather than from the wall clock. A
// lookback of P7D keeps the latest day and the six before it.
func FilterLookback(s Series, lookback time.Duration) Series {
	if lookback <= 0 {
		return s.clone()
	}
	_, last, ok := DateRange(s)
	if !ok {
		return FilterDateRange(s, time.Time{}, time.Time{})
	}
	from := FloorDay(last.Add(-lookback).Add(24 * time.Hour))
	return FilterDateRange(s, from, time.Time{})
}

// ParseLookback parses an ISO-8601 duration such as P7D or P1M.
func ParseLookback(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("%w: lookback %q: %v", ErrInvalidArgument, s, err)
	}
	td := d.ToTimeDuration()
	if td < 0 {
		return 0, fmt.Errorf("%w: negative lookback %q", ErrInvalidArgument, s)
	}
	return td, nil
}

// ParseDate parses a calendar date bound in DateLayout or any timestamp layout.
func ParseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, ok := ParseTimestamp(s)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidArgument, s)
	}
	return FloorDay(t), nil
}
