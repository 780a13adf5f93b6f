package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NamedSeries labels an input of Align; Name becomes the column name.
type NamedSeries struct {
	Name   string
	Series Series
}

// AlignedRow holds one date and the value of every input on that date.
type AlignedRow struct {
	Date   time.Time `json:"date" yaml:"date"`
	Values []float64 `json:"values" yaml:"values"`
}

// AlignedTable is the inner join of per-date means; Columns follows input order.
type AlignedTable struct {
	Columns []string     `json:"columns" yaml:"columns"`
	Rows    []AlignedRow `json:"rows" yaml:"rows"`
}

// Column returns the values of column i in row order.
func (t AlignedTable) Column(i int) []float64 {
	out := make([]float64, len(t.Rows))
	for j, r := range t.Rows {
		out[j] = r.Values[i]
	}
	return out
}

// Correlation is a Pearson coefficient between two aligned columns. When
// Defined is false R carries no meaning and Reason says why.
type Correlation struct {
	A       string  `json:"a" yaml:"a"`
	B       string  `json:"b" yaml:"b"`
	R       float64 `json:"r" yaml:"r"`
	N       int     `json:"n" yaml:"n"`
	Defined bool    `json:"defined" yaml:"defined"`
	Reason  string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Alignment is the result of Align. Correlation is set only for two inputs.
type Alignment struct {
	Table       AlignedTable `json:"table" yaml:"table"`
	Correlation *Correlation `json:"correlation,omitempty" yaml:"correlation,omitempty"`
}

// dailyMeans reduces s to one mean value per calendar date.
func dailyMeans(s Series) map[time.Time]float64 {
	s = ensureNormalized(s)
	sum := map[time.Time]float64{}
	cnt := map[time.Time]int{}
	for _, r := range s.Records {
		if !r.Parsed || !r.HasValue {
			continue
		}
		sum[r.Calendar.Date] += r.Value
		cnt[r.Calendar.Date]++
	}
	for d := range sum {
		sum[d] /= float64(cnt[d])
	}
	return sum
}

// Align reduces every input to its daily mean and inner-joins them on date:
// a date survives only if every input has a value for it. Missing days are
// never filled. Exactly two inputs also get a Pearson correlation; more
// inputs yield the table only. An empty join returns NoOverlapError.
func Align(inputs ...NamedSeries) (*Alignment, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: align needs at least two series, got %d", ErrInvalidArgument, len(inputs))
	}
	names := make([]string, len(inputs))
	seen := map[string]struct{}{}
	for i, in := range inputs {
		if _, dup := seen[in.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate series %q", ErrInvalidArgument, in.Name)
		}
		seen[in.Name] = struct{}{}
		names[i] = in.Name
		if err := in.Series.Require(FieldValue); err != nil {
			return nil, err
		}
	}

	daily := make([]map[time.Time]float64, len(inputs))
	for i, in := range inputs {
		daily[i] = dailyMeans(in.Series)
	}
	var dates []time.Time
	for d := range daily[0] {
		inAll := true
		for _, m := range daily[1:] {
			if _, ok := m[d]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, &NoOverlapError{Series: names}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := &Alignment{Table: AlignedTable{Columns: names, Rows: make([]AlignedRow, len(dates))}}
	for i, d := range dates {
		vals := make([]float64, len(inputs))
		for j := range inputs {
			vals[j] = daily[j][d]
		}
		out.Table.Rows[i] = AlignedRow{Date: d, Values: vals}
	}
	if len(inputs) == 2 {
		c := Correlate(names[0], names[1], out.Table.Column(0), out.Table.Column(1))
		out.Correlation = &c
	}
	return out, nil
}

// constantTol bounds the spread, relative to the magnitude of the values,
// below which a column counts as constant. Daily means of a constant series
// differ in the last bits depending on how many readings each day had.
const constantTol = 1e-9

func constant(x []float64) bool {
	scale := math.Max(1, math.Max(math.Abs(floats.Max(x)), math.Abs(floats.Min(x))))
	return floats.Max(x)-floats.Min(x) <= constantTol*scale
}

// Correlate computes Pearson's r over paired samples. The result is undefined
// for fewer than two pairs or when either side has zero variance, up to
// rounding.
func Correlate(a, b string, x, y []float64) Correlation {
	c := Correlation{A: a, B: b, N: len(x)}
	switch {
	case len(x) != len(y):
		c.Reason = fmt.Sprintf("length mismatch: %d vs %d", len(x), len(y))
		return c
	case len(x) < 2:
		c.Reason = "fewer than 2 aligned rows"
		return c
	case constant(x):
		c.Reason = fmt.Sprintf("zero variance in %s", a)
		return c
	case constant(y):
		c.Reason = fmt.Sprintf("zero variance in %s", b)
		return c
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		c.Reason = "correlation not finite"
		return c
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	c.R = r
	c.Defined = true
	return c
}
