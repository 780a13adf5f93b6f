package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// Table is one raw CSV dataset: a header and string rows padded to its width.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

type alias struct {
	field string
	rank  int
}

// headerAliases maps normalized header spellings onto canonical field names.
// When several headers map to one field the lowest rank wins, so an exact
// startDate beats creationDate regardless of column order.
var headerAliases = map[string]alias{
	"startdate":          {metrics.FieldStart, 0},
	"start":              {metrics.FieldStart, 1},
	"timestamp":          {metrics.FieldStart, 2},
	"date":               {metrics.FieldStart, 3},
	"creationdate":       {metrics.FieldStart, 4},
	"enddate":            {metrics.FieldEnd, 0},
	"end":                {metrics.FieldEnd, 1},
	"sourcename":         {metrics.FieldSource, 0},
	"source":             {metrics.FieldSource, 1},
	"value":              {metrics.FieldValue, 0},
	"sleeptype":          {metrics.FieldSleepType, 0},
	"sleepdurationhours": {metrics.FieldSleepDurationHours, 0},
	"sleephours":         {metrics.FieldSleepDurationHours, 1},
}

func canonicalField(h string) (string, int, bool) {
	k := strings.ToLower(strings.TrimSpace(h))
	k = strings.NewReplacer("_", "", " ", "", "-", "").Replace(k)
	if a, ok := headerAliases[k]; ok {
		return a.field, a.rank, true
	}
	return strings.TrimSpace(h), 0, false
}

// ReadCSV reads a dataset table. A zero delim is sniffed from the header line.
func ReadCSV(name string, r io.Reader, delim rune) (*Table, error) {
	br := bufio.NewReader(r)
	if delim == 0 {
		head, _ := br.Peek(4096)
		delim = sniffDelimiter(head)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	t := &Table{Name: name}
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t.Header = append([]string(nil), header...)
	ncol := len(header)
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		row := make([]string, ncol)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// sniffDelimiter picks the most frequent of ',', ';' and tab in the first line.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(head, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// Series converts the table into a metric series. Headers are mapped onto
// canonical fields; every other column is kept in Record.Fields. Rows whose
// value cell does not parse keep HasValue false.
func (t *Table) Series() metrics.Series {
	cols := make([]string, len(t.Header))
	best := map[string]int{}
	rank := map[string]int{}
	for i, h := range t.Header {
		f, r, ok := canonicalField(h)
		if !ok {
			continue
		}
		if _, seen := best[f]; !seen || r < rank[f] {
			best[f], rank[f] = i, r
		}
	}
	idx := map[string]int{}
	for i, h := range t.Header {
		c := strings.TrimSpace(h)
		if f, _, ok := canonicalField(h); ok && best[f] == i {
			c = f
		}
		cols[i] = c
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	cell := func(row []string, field string) string {
		if i, ok := idx[field]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	recs := make([]metrics.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := metrics.Record{
			Start:  cell(row, metrics.FieldStart),
			End:    cell(row, metrics.FieldEnd),
			Source: cell(row, metrics.FieldSource),
		}
		if v := cell(row, metrics.FieldValue); v != "" {
			r.Value, r.HasValue = metrics.ParseNumeric(v)
		}
		for i, c := range cols {
			switch c {
			case metrics.FieldStart, metrics.FieldEnd, metrics.FieldSource, metrics.FieldValue:
				continue
			}
			if i < len(row) && row[i] != "" {
				if r.Fields == nil {
					r.Fields = map[string]string{}
				}
				r.Fields[c] = strings.TrimSpace(row[i])
			}
		}
		recs = append(recs, r)
	}
	return metrics.NewSeries(t.Name, cols, recs)
}
