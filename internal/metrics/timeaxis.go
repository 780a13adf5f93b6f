package metrics

import (
	"strings"
	"time"
)

// DateLayout is the wire form of a calendar date.
const DateLayout = "2006-01-02"

var weekdayOrder = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var monthOrder = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// DayOfWeekOrder returns the canonical Monday..Sunday axis.
func DayOfWeekOrder() []string { return append([]string(nil), weekdayOrder...) }

// MonthOrder returns the canonical January..December axis.
func MonthOrder() []string { return append([]string(nil), monthOrder...) }

// Calendar holds the calendar features derived from a timestamp.
type Calendar struct {
	Date      time.Time
	DayOfWeek time.Weekday
	Month     time.Month
	Year      int
	Hour      int
}

// DayName returns the English weekday name.
func (c Calendar) DayName() string { return c.DayOfWeek.String() }

// MonthName returns the English month name.
func (c Calendar) MonthName() string { return c.Month.String() }

// CalendarOf derives calendar features from a naive timestamp.
func CalendarOf(t time.Time) Calendar {
	return Calendar{
		Date:      FloorDay(t),
		DayOfWeek: t.Weekday(),
		Month:     t.Month(),
		Year:      t.Year(),
		Hour:      t.Hour(),
	}
}

// dowIndex maps a weekday onto the Monday-first axis.
func dowIndex(w time.Weekday) int { return (int(w) + 6) % 7 }

// Apple Health exports use the first layout; the rest cover common CSV tooling.
var timestampLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseTimestamp parses s permissively and returns its wall clock as naive
// time in the UTC location. Offsets are discarded, not applied, so a reading
// taken at 23:30 local time stays on its local day.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return naive(t), true
		}
	}
	return time.Time{}, false
}

func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// FloorDay truncates t to midnight of its wall-clock day.
func FloorDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize returns a copy of s with Time, EndTime and Calendar populated for
// every record whose start timestamp parses. Derived fields are recomputed
// from the raw text on every call, so Normalize(Normalize(s)) == Normalize(s).
func Normalize(s Series) Series {
	out := s.clone()
	for i := range out.Records {
		r := &out.Records[i]
		r.Parsed, r.Time, r.EndTime, r.Calendar = false, time.Time{}, time.Time{}, Calendar{}
		t, ok := ParseTimestamp(r.Start)
		if !ok {
			continue
		}
		r.Parsed = true
		r.Time = t
		r.Calendar = CalendarOf(t)
		if end, ok := ParseTimestamp(r.End); ok {
			r.EndTime = end
		}
	}
	out.normalized = true
	return out
}

func ensureNormalized(s Series) Series {
	if s.normalized {
		return s
	}
	return Normalize(s)
}

// DateRange returns the first and last calendar date present in s.
func DateRange(s Series) (first, last time.Time, ok bool) {
	s = ensureNormalized(s)
	for _, r := range s.Records {
		if !r.Parsed {
			continue
		}
		d := r.Calendar.Date
		if !ok || d.Before(first) {
			first = d
		}
		if !ok || d.After(last) {
			last = d
		}
		ok = true
	}
	return first, last, ok
}
