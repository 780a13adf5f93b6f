package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// xlsxReader reads the worksheet named after the dataset, or the first one.
type xlsxReader struct{}

func (xlsxReader) CanRead(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".xlsx")
}

func (xlsxReader) Read(name string, r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	return ReadXLSX(name, b)
}

// ReadXLSX parses a workbook held in memory. Timestamp columns stored as
// spreadsheet serial numbers are rewritten as "2006-01-02 15:04:05".
func ReadXLSX(name string, data []byte) (*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := parseWorkbook(zipMember(zr, "xl/workbook.xml"))
	rels := parseRelationships(zipMember(zr, "xl/_rels/workbook.xml.rels"))
	shared := parseSharedStrings(zipMember(zr, "xl/sharedStrings.xml"))

	target := "xl/worksheets/sheet1.xml"
	if len(sheets) > 0 {
		pick := sheets[0]
		for _, s := range sheets {
			if strings.EqualFold(s.name, name) {
				pick = s
				break
			}
		}
		if rel, ok := rels[pick.rid]; ok {
			target = relPath(rel)
		}
	}
	sheet := zipMember(zr, target)
	if sheet == nil {
		return nil, fmt.Errorf("xlsx: worksheet %s not found", target)
	}

	t := &Table{Name: name}
	rr := &sheetRows{dec: xml.NewDecoder(bytes.NewReader(sheet)), shared: shared}
	header, ok := rr.next()
	if !ok {
		return t, nil
	}
	t.Header = header
	var timeCols []int
	for i, h := range header {
		if f, _, _ := canonicalField(h); f == metrics.FieldStart || f == metrics.FieldEnd {
			timeCols = append(timeCols, i)
		}
	}
	for {
		row, ok := rr.next()
		if !ok {
			break
		}
		padded := make([]string, len(header))
		copy(padded, row)
		for _, i := range timeCols {
			padded[i] = serialTime(padded[i])
		}
		t.Rows = append(t.Rows, padded)
	}
	if rr.err != nil && !errors.Is(rr.err, io.EOF) {
		return nil, fmt.Errorf("read xlsx rows: %w", rr.err)
	}
	return t, nil
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// serialTime converts spreadsheet day serials; anything else passes through.
func serialTime(v string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 || f > 2958465 {
		return v
	}
	days, frac := math.Modf(f)
	secs := math.Round(frac * 86400)
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second).Format("2006-01-02 15:04:05")
}

func zipMember(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		return b
	}
	return nil
}

// relPath turns a relationship target into a zip member path.
func relPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}

type wbSheet struct {
	name string
	rid  string
}

func parseWorkbook(data []byte) []wbSheet {
	var sheets []wbSheet
	if len(data) == 0 {
		return sheets
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return sheets
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			var s wbSheet
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "name":
					s.name = a.Value
				case "id":
					s.rid = a.Value // r:id
				}
			}
			sheets = append(sheets, s)
		}
	}
}

func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	inT := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

// sheetRows streams worksheet rows as strings, placing cells by reference.
type sheetRows struct {
	dec    *xml.Decoder
	shared []string
	err    error
}

func (r *sheetRows) next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			r.err = err
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				inRow, row = true, nil
				continue
			}
			if !inRow || se.Name.Local != "c" {
				continue
			}
			var ref, typ string
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "r":
					ref = a.Value
				case "t":
					typ = a.Value
				}
			}
			col := colIndex(ref)
			if col < 0 {
				col = len(row)
			}
			for len(row) <= col {
				row = append(row, "")
			}
			row[col] = r.cell(typ)
		case xml.EndElement:
			if inRow && se.Name.Local == "row" {
				return row, true
			}
		}
	}
}

// cell reads up to the closing </c>, returning the <v> or inline <t> text.
func (r *sheetRows) cell(typ string) string {
	var val string
	for {
		tok, err := r.dec.Token()
		if err != nil {
			r.err = err
			return val
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, err := r.dec.Token()
					if err != nil {
						break
					}
					if ed, ok := tk.(xml.EndElement); ok && ed.Name.Local == se.Name.Local {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write(ch)
					}
				}
				val = sb.String()
			}
		case xml.EndElement:
			if se.Name.Local != "c" {
				continue
			}
			if typ == "s" {
				i, err := strconv.Atoi(val)
				if err != nil || i < 0 || i >= len(r.shared) {
					return ""
				}
				return r.shared[i]
			}
			return val
		}
	}
}

// colIndex maps a cell reference like "C12" to 2. It returns -1 without letters.
func colIndex(ref string) int {
	idx := 0
	n := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
		n++
	}
	if n == 0 {
		return -1
	}
	return idx - 1
}
