package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

func dowSeries(t *testing.T) *metrics.AggregatedSeries {
	t.Helper()
	s := metrics.NewSeries(metrics.StepCount,
		[]string{metrics.FieldStart, metrics.FieldSource, metrics.FieldValue},
		[]metrics.Record{
			{Start: "2024-01-01 10:00:00", Source: "phone", Value: 100, HasValue: true},
			{Start: "2024-01-03 10:00:00", Source: "phone", Value: 300, HasValue: true},
		})
	a, err := metrics.Aggregate(s, metrics.GroupDayOfWeek, metrics.Sum, false)
	require.NoError(t, err)
	return a
}

func TestMarkdown_OrderedAxisKeepsEmptyDays(t *testing.T) {
	md := Markdown(dowSeries(t))
	assert.True(t, strings.HasPrefix(md, "[STEPCOUNT BY DOW]\n"))
	mon := strings.Index(md, "| Monday | 100.00 | 1 |")
	tue := strings.Index(md, "| Tuesday | - | 0 |")
	wed := strings.Index(md, "| Wednesday | 300.00 | 1 |")
	sun := strings.Index(md, "| Sunday | - | 0 |")
	require.True(t, mon >= 0 && tue >= 0 && wed >= 0 && sun >= 0, md)
	assert.Less(t, mon, tue)
	assert.Less(t, tue, wed)
	assert.Less(t, wed, sun)
}

func TestMarkdown_SleepNoDataMarker(t *testing.T) {
	v := 7.5
	md := Markdown(&metrics.SleepSummary{
		WeeklyAverage: []metrics.DayValue{
			{Day: "Monday", Value: &v, HasData: true, Days: 1},
			{Day: "Tuesday"},
		},
		DaysObserved: 1,
	})
	assert.Contains(t, md, "| Monday | 7.50 | 1 |")
	assert.Contains(t, md, "| Tuesday | no data | 0 |")
}

func TestMarkdown_Correlation(t *testing.T) {
	md := Markdown(&metrics.Alignment{
		Table:       metrics.AlignedTable{Columns: []string{"A", "B"}},
		Correlation: &metrics.Correlation{A: "A", B: "B", N: 1, Reason: "fewer than 2 aligned rows"},
	})
	assert.Contains(t, md, "| Date | A | B |")
	assert.Contains(t, md, "A ~ B: undefined (fewer than 2 aligned rows)")
}

func TestMarkdown_PanelsAndOverview(t *testing.T) {
	md := Markdown([]dashboard.Panel{
		{ID: "bmi", Section: "Heart & body", Title: "BMI", Unavailable: &dashboard.Unavailable{Metric: "BMI", Reason: `dataset "BodyMass" not available`}},
		{ID: "steps-by-source", Section: "Heart & body", Title: "Steps by source", Data: []metrics.SourceSummary{{Source: "a|b", Count: 1, Mean: 2}}},
	})
	assert.Contains(t, md, "## Heart & body")
	assert.Contains(t, md, "[BMI]\nUnavailable: dataset \"BodyMass\" not available")
	assert.Contains(t, md, "[STEPS BY SOURCE]")
	assert.Contains(t, md, "| a/b | 1 | 2.00 |")

	md = Markdown(&dashboard.Overview{KPIs: []dashboard.KPI{
		{Label: "Average heart rate", Value: 71.234, Unit: "bpm", Available: true},
		{Label: "Average sleep", Reason: "dataset \"SleepAnalysis\" not available"},
	}})
	assert.Contains(t, md, "- Average heart rate: 71.23 bpm")
	assert.Contains(t, md, "- Average sleep: unavailable")
}

func TestBytes_JSONAndYAML(t *testing.T) {
	a := dowSeries(t)
	b, err := Bytes("json", a)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "dow", got["group_key"])
	assert.Equal(t, "sum", got["reduce"])
	assert.Len(t, got["categories"], 7)

	b, err = Bytes("yaml", a)
	require.NoError(t, err)
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(b, &y))
	assert.Equal(t, "StepCount", y["metric"])

	_, err = Bytes("html", a)
	assert.Error(t, err)
}

func TestRender_FallbackYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "markdown", map[string]int{"entries": 3}))
	assert.Equal(t, "```yaml\nentries: 3\n```\n", buf.String())
}
