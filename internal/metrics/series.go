// Package metrics is the normalization, aggregation and alignment engine for
// health-metric datasets. Every function is pure: it takes series and
// parameters and returns new values without touching its inputs.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Canonical column names. Readers map their headers onto these.
const (
	FieldStart              = "startDate"
	FieldEnd                = "endDate"
	FieldSource             = "sourceName"
	FieldValue              = "value"
	FieldSleepType          = "sleepType"
	FieldSleepDurationHours = "sleepDurationHours"
)

// Record is one raw row of a dataset. Start and End keep the timestamp text
// as supplied; Parsed, Time, EndTime and Calendar are filled by Normalize.
type Record struct {
	Start    string
	End      string
	Source   string
	Value    float64
	HasValue bool
	// Fields holds metric specific columns keyed by canonical name.
	Fields map[string]string

	Parsed   bool
	Time     time.Time
	EndTime  time.Time
	Calendar Calendar
}

// Field returns a metric specific column value.
func (r Record) Field(name string) (string, bool) {
	if r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[name]
	return v, ok
}

func (r Record) fieldFloat(name string) (float64, bool) {
	v, ok := r.Field(name)
	if !ok {
		return 0, false
	}
	return ParseNumeric(v)
}

// ParseNumeric accepts '.' or ',' decimals with optional thousands
// separators. NaN and infinities count as missing.
func ParseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if raw == "" {
		return 0, false
	}
	dec := '.'
	if strings.LastIndex(raw, ",") > strings.LastIndex(raw, ".") {
		dec = ','
	}
	for _, sep := range []rune{',', '.', ' '} {
		if sep != dec {
			raw = strings.ReplaceAll(raw, string(sep), "")
		}
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Series is a named dataset: ordered records plus the set of columns the
// source table carried.
type Series struct {
	Name    string
	Columns []string
	Records []Record

	normalized bool
}

// NewSeries builds a series from copies of columns and records.
func NewSeries(name string, columns []string, records []Record) Series {
	s := Series{Name: name}
	s.Columns = append([]string(nil), columns...)
	s.Records = append([]Record(nil), records...)
	return s
}

// Len returns the number of records, parsed or not.
func (s Series) Len() int { return len(s.Records) }

// Has reports whether the series carries the named column.
func (s Series) Has(column string) bool {
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Require returns a MissingFieldError for the first absent column.
func (s Series) Require(columns ...string) error {
	for _, c := range columns {
		if !s.Has(c) {
			return &MissingFieldError{Dataset: s.Name, Field: c}
		}
	}
	return nil
}

// Unparsed counts records whose timestamp cannot be parsed. Those records
// stay in the series but never take part in grouping.
func (s Series) Unparsed() int {
	n := 0
	for _, r := range s.Records {
		if _, ok := ParseTimestamp(r.Start); !ok {
			n++
		}
	}
	return n
}

func (s Series) clone() Series {
	out := NewSeries(s.Name, s.Columns, s.Records)
	out.normalized = s.normalized
	return out
}

func (s Series) withColumn(column string) Series {
	if !s.Has(column) {
		s.Columns = append(append([]string(nil), s.Columns...), column)
	}
	return s
}

// Datasets maps dataset identifiers such as "StepCount" to their series.
type Datasets map[string]Series

// Get returns the named series or a MissingDatasetError.
func (d Datasets) Get(name string) (Series, error) {
	s, ok := d[name]
	if !ok {
		return Series{}, &MissingDatasetError{Dataset: name}
	}
	return s, nil
}

// Names returns dataset identifiers in lexical order.
func (d Datasets) Names() []string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
