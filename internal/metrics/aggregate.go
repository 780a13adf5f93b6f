package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GroupKey selects the time dimension records are bucketed by.
type GroupKey int

const (
	GroupDate GroupKey = iota + 1
	GroupDayOfWeek
	GroupMonthName
	GroupYear
	GroupHour
	// GroupYearMonth keeps same-named months of different years apart.
	GroupYearMonth
)

var groupKeyNames = map[GroupKey]string{
	GroupDate:      "date",
	GroupDayOfWeek: "dow",
	GroupMonthName: "month_name",
	GroupYear:      "year",
	GroupHour:      "hour",
	GroupYearMonth: "year_month",
}

func (k GroupKey) String() string {
	if n, ok := groupKeyNames[k]; ok {
		return n
	}
	return "GroupKey(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText encodes the key by name.
func (k GroupKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k GroupKey) valid() bool {
	_, ok := groupKeyNames[k]
	return ok
}

// Ordered reports whether the key has a canonical calendar axis.
func (k GroupKey) Ordered() bool { return k == GroupDayOfWeek || k == GroupMonthName }

// ParseGroupKey maps user supplied names onto GroupKey.
func ParseGroupKey(s string) (GroupKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "date", "day", "daily":
		return GroupDate, nil
	case "dow", "weekday", "day_of_week":
		return GroupDayOfWeek, nil
	case "month_name", "monthname", "month":
		return GroupMonthName, nil
	case "year", "yearly":
		return GroupYear, nil
	case "hour", "hourly":
		return GroupHour, nil
	case "year_month", "yearmonth":
		return GroupYearMonth, nil
	}
	return 0, &UnsupportedGroupKeyError{Key: s}
}

// ReduceOp is the reduction applied inside each bucket.
type ReduceOp int

const (
	Sum ReduceOp = iota + 1
	Mean
)

func (op ReduceOp) String() string {
	switch op {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	}
	return "ReduceOp(" + strconv.Itoa(int(op)) + ")"
}

// MarshalText encodes the op by name.
func (op ReduceOp) MarshalText() ([]byte, error) { return []byte(op.String()), nil }

func (op ReduceOp) apply(vals []float64) float64 {
	if op == Sum {
		return floats.Sum(vals)
	}
	return stat.Mean(vals, nil)
}

// Bucket is one reduced group. Rank is the bucket's position on the axis.
type Bucket struct {
	Key    string  `json:"key" yaml:"key"`
	Rank   int     `json:"rank" yaml:"rank"`
	Source string  `json:"source,omitempty" yaml:"source,omitempty"`
	Value  float64 `json:"value" yaml:"value"`
	Count  int     `json:"count" yaml:"count"`
}

// AggregatedSeries is the result of Aggregate. Categories lists the axis in
// render order: the full canonical calendar for dow and month_name, the
// observed keys in ascending order otherwise. Buckets follow that order, then
// source name.
type AggregatedSeries struct {
	Metric     string   `json:"metric" yaml:"metric"`
	GroupKey   GroupKey `json:"group_key" yaml:"group_key"`
	Reduce     ReduceOp `json:"reduce" yaml:"reduce"`
	BySource   bool     `json:"by_source" yaml:"by_source"`
	Ordered    bool     `json:"ordered" yaml:"ordered"`
	Categories []string `json:"categories" yaml:"categories"`
	Buckets    []Bucket `json:"buckets" yaml:"buckets"`
}

// Values returns bucket values in order.
func (a *AggregatedSeries) Values() []float64 {
	out := make([]float64, len(a.Buckets))
	for i, b := range a.Buckets {
		out[i] = b.Value
	}
	return out
}

// Sources returns the distinct bucket sources in order of first appearance.
func (a *AggregatedSeries) Sources() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, b := range a.Buckets {
		if _, ok := seen[b.Source]; ok {
			continue
		}
		seen[b.Source] = struct{}{}
		out = append(out, b.Source)
	}
	return out
}

// Tail keeps the buckets of the last n axis positions.
func (a *AggregatedSeries) Tail(n int) *AggregatedSeries {
	out := *a
	if n <= 0 {
		out.Buckets = nil
		out.Categories = nil
		return &out
	}
	if len(a.Categories) > n && !a.Ordered {
		keep := map[string]struct{}{}
		out.Categories = append([]string(nil), a.Categories[len(a.Categories)-n:]...)
		for _, c := range out.Categories {
			keep[c] = struct{}{}
		}
		out.Buckets = nil
		for _, b := range a.Buckets {
			if _, ok := keep[b.Key]; ok {
				out.Buckets = append(out.Buckets, b)
			}
		}
	}
	return &out
}

func groupLabel(c Calendar, key GroupKey) (string, int) {
	switch key {
	case GroupDate:
		return c.Date.Format(DateLayout), int(c.Date.Unix() / 86400)
	case GroupDayOfWeek:
		return c.DayName(), dowIndex(c.DayOfWeek)
	case GroupMonthName:
		return c.MonthName(), int(c.Month) - 1
	case GroupYear:
		return strconv.Itoa(c.Year), c.Year
	case GroupHour:
		return strconv.Itoa(c.Hour), c.Hour
	case GroupYearMonth:
		return c.Date.Format("2006-01"), c.Year*12 + int(c.Month) - 1
	}
	return "", 0
}

type bucketID struct {
	rank   int
	source string
}

// Aggregate buckets the records of s by key, optionally split per source, and
// reduces each bucket with op. Records without a parsed timestamp or a value
// are skipped; with bySource, records without a source are skipped too.
// Grouping by month_name ignores the year: every January lands in one bucket.
func Aggregate(s Series, key GroupKey, op ReduceOp, bySource bool) (*AggregatedSeries, error) {
	if !key.valid() {
		return nil, &UnsupportedGroupKeyError{Key: key.String()}
	}
	if op != Sum && op != Mean {
		return nil, fmt.Errorf("%w: reduce op %s", ErrInvalidArgument, op)
	}
	if err := s.Require(FieldValue); err != nil {
		return nil, err
	}
	s = ensureNormalized(s)

	type acc struct {
		label string
		vals  []float64
	}
	groups := map[bucketID]*acc{}
	for _, r := range s.Records {
		if !r.Parsed || !r.HasValue {
			continue
		}
		id := bucketID{}
		if bySource {
			if r.Source == "" {
				continue
			}
			id.source = r.Source
		}
		label, rank := groupLabel(r.Calendar, key)
		id.rank = rank
		g := groups[id]
		if g == nil {
			g = &acc{label: label}
			groups[id] = g
		}
		g.vals = append(g.vals, r.Value)
	}

	out := &AggregatedSeries{
		Metric:   s.Name,
		GroupKey: key,
		Reduce:   op,
		BySource: bySource,
		Ordered:  key.Ordered(),
		Buckets:  make([]Bucket, 0, len(groups)),
	}
	for id, g := range groups {
		out.Buckets = append(out.Buckets, Bucket{
			Key:    g.label,
			Rank:   id.rank,
			Source: id.source,
			Value:  op.apply(g.vals),
			Count:  len(g.vals),
		})
	}
	sort.Slice(out.Buckets, func(i, j int) bool {
		if out.Buckets[i].Rank == out.Buckets[j].Rank {
			return out.Buckets[i].Source < out.Buckets[j].Source
		}
		return out.Buckets[i].Rank < out.Buckets[j].Rank
	})

	switch key {
	case GroupDayOfWeek:
		out.Categories = DayOfWeekOrder()
	case GroupMonthName:
		out.Categories = MonthOrder()
	default:
		for i, b := range out.Buckets {
			if i > 0 && out.Buckets[i-1].Rank == b.Rank {
				continue
			}
			out.Categories = append(out.Categories, b.Key)
		}
	}
	return out, nil
}

// DailyAverage reduces s per day with op and averages the daily values. It is
// the "average daily" figure: mean of daily sums for additive metrics, mean of
// daily means for rates. ok is false when no day has data.
func DailyAverage(s Series, op ReduceOp) (avg float64, ok bool, err error) {
	daily, err := Aggregate(s, GroupDate, op, false)
	if err != nil {
		return 0, false, err
	}
	if len(daily.Buckets) == 0 {
		return 0, false, nil
	}
	return stat.Mean(daily.Values(), nil), true, nil
}
