package dataset

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

func buildXLSX(t *testing.T, sheetName string) []byte {
	t.Helper()
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId2"/><sheet name="` + sheetName + `" sheetId="2" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Target="/xl/worksheets/sheet2.xml"/><Relationship Id="rId2" Target="worksheets/sheet1.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst><si><t>sourceName</t></si><si><t>startDate</t></si><si><t>value</t></si><si><t>phone</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>note</t></is></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<worksheet><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="s"><v>2</v></c></row>
<row r="2"><c r="A2" t="s"><v>3</v></c><c r="B2"><v>45292.5</v></c><c r="C2"><v>1200</v></c></row>
<row r="3"><c r="B3" t="inlineStr"><is><t>2024-01-02 08:00:00</t></is></c><c r="C3"><v>300</v></c></row>
</sheetData></worksheet>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadXLSX_PicksNamedSheet(t *testing.T) {
	tbl, err := ReadXLSX("StepCount", buildXLSX(t, "StepCount"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sourceName", "startDate", "value"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"phone", "2024-01-01 12:00:00", "1200"}, tbl.Rows[0])
	assert.Equal(t, []string{"", "2024-01-02 08:00:00", "300"}, tbl.Rows[1])

	s := tbl.Series()
	require.Equal(t, 2, s.Len())
	assert.True(t, s.Records[1].HasValue)
	assert.Equal(t, 300.0, s.Records[1].Value)
}

func TestReadXLSX_FallsBackToFirstSheet(t *testing.T) {
	tbl, err := ReadXLSX("HeartRate", buildXLSX(t, "StepCount"))
	require.NoError(t, err)
	assert.Equal(t, []string{"note"}, tbl.Header)
	assert.Empty(t, tbl.Rows)

	_, err = ReadXLSX("x", []byte("not a zip"))
	assert.Error(t, err)
}

func TestLoad_SingleXLSX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "StepCount.xlsx")
	require.NoError(t, os.WriteFile(p, buildXLSX(t, "StepCount"), 0o644))
	b, err := Load(p)
	require.NoError(t, err)
	require.Contains(t, b.Tables, metrics.StepCount)
	assert.Len(t, b.Tables[metrics.StepCount].Rows, 2)
}

func TestSerialTime(t *testing.T) {
	assert.Equal(t, "2024-01-01 00:00:00", serialTime("45292"))
	assert.Equal(t, "2024-01-01 2:00", serialTime("2024-01-01 2:00"))
	assert.Equal(t, "", serialTime(""))
}
