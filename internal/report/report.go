// Package report renders dashboard views as markdown, JSON or YAML.
package report

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
	"github.com/KaramelBytes/healthloom-cli/internal/utils"
)

// Render writes v to w in the given format (markdown, json or yaml).
func Render(w io.Writer, format string, v any) error {
	b, err := Bytes(format, v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Bytes renders v in the given format.
func Bytes(format string, v any) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return []byte(Markdown(v)), nil
	case "json":
		b, err := utils.PrettyJSON(v)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case "yaml", "yml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal yaml: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported format: %s (use markdown, json or yaml)", format)
}

// Markdown renders a compact report for the known view types. Anything else
// falls back to a fenced YAML dump.
func Markdown(v any) string {
	var b strings.Builder
	switch x := v.(type) {
	case []dashboard.DatasetInfo:
		writeInventory(&b, x)
	case *dashboard.Overview:
		writeOverview(&b, x)
	case *metrics.AggregatedSeries:
		writeAggregate(&b, x)
	case []metrics.SourceSummary:
		writeSources(&b, "", x)
	case *metrics.BMISeries:
		writeBMI(&b, x)
	case []metrics.EnergyDay:
		writeEnergy(&b, x)
	case *metrics.SleepSummary:
		writeSleep(&b, x)
	case *metrics.Alignment:
		writeAlignment(&b, x)
	case []dashboard.Panel:
		writePanels(&b, x)
	case *dashboard.Unavailable:
		writeUnavailable(&b, x)
	default:
		y, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Sprintf("(unrenderable: %v)\n", err)
		}
		b.WriteString("```yaml\n")
		b.Write(y)
		b.WriteString("```\n")
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

func num(v float64) string { return fmt.Sprintf("%.2f", v) }

func writeTable(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = safeVal(c)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func writeInventory(b *strings.Builder, inv []dashboard.DatasetInfo) {
	b.WriteString("[DATASETS]\n")
	if len(inv) == 0 {
		b.WriteString("No datasets loaded.\n")
		return
	}
	rows := make([][]string, 0, len(inv))
	for _, d := range inv {
		span := ""
		if d.First != "" {
			span = d.First + " .. " + d.Last
		}
		rows = append(rows, []string{d.Name, d.Label, d.Reduce, fmt.Sprint(d.Rows), fmt.Sprint(d.Unparsed), span, strings.Join(d.Sources, ", ")})
	}
	writeTable(b, []string{"Dataset", "Metric", "Reduce", "Rows", "Unparsed", "Dates", "Sources"}, rows)
}

func writeOverview(b *strings.Builder, o *dashboard.Overview) {
	b.WriteString("[OVERVIEW]\n")
	for _, k := range o.KPIs {
		if k.Available {
			b.WriteString(fmt.Sprintf("- %s: %s %s\n", k.Label, num(k.Value), k.Unit))
		} else {
			b.WriteString(fmt.Sprintf("- %s: unavailable (%s)\n", k.Label, k.Reason))
		}
	}
	if o.RecentSteps != nil && len(o.RecentSteps.Buckets) > 0 {
		b.WriteString("\n[RECENT STEPS]\n")
		rows := make([][]string, 0, len(o.RecentSteps.Buckets))
		for _, bk := range o.RecentSteps.Buckets {
			rows = append(rows, []string{bk.Key, fmt.Sprintf("%.0f", bk.Value)})
		}
		writeTable(b, []string{"Date", "Steps"}, rows)
	}
}

func writeAggregate(b *strings.Builder, a *metrics.AggregatedSeries) {
	b.WriteString(fmt.Sprintf("[%s BY %s]\n", strings.ToUpper(a.Metric), strings.ToUpper(a.GroupKey.String())))
	b.WriteString(fmt.Sprintf("Reduce: %s\n", a.Reduce))
	if a.GroupKey == metrics.GroupMonthName {
		b.WriteString("Note: months of different years share one bucket; use year_month to keep them apart.\n")
	}
	b.WriteString("\n")
	if len(a.Buckets) == 0 {
		b.WriteString("No data.\n")
		return
	}
	header := []string{a.GroupKey.String(), "Value", "Count"}
	if a.BySource {
		header = []string{a.GroupKey.String(), "Source", "Value", "Count"}
	}
	var rows [][]string
	if a.Ordered {
		// walk the full axis so empty weekdays or months stay visible
		byKey := map[string][]metrics.Bucket{}
		for _, bk := range a.Buckets {
			byKey[bk.Key] = append(byKey[bk.Key], bk)
		}
		for _, c := range a.Categories {
			bks := byKey[c]
			if len(bks) == 0 {
				row := []string{c, "-", "0"}
				if a.BySource {
					row = []string{c, "", "-", "0"}
				}
				rows = append(rows, row)
				continue
			}
			for _, bk := range bks {
				rows = append(rows, bucketRow(bk, a.BySource))
			}
		}
	} else {
		for _, bk := range a.Buckets {
			rows = append(rows, bucketRow(bk, a.BySource))
		}
	}
	writeTable(b, header, rows)
}

func bucketRow(bk metrics.Bucket, bySource bool) []string {
	if bySource {
		return []string{bk.Key, bk.Source, num(bk.Value), fmt.Sprint(bk.Count)}
	}
	return []string{bk.Key, num(bk.Value), fmt.Sprint(bk.Count)}
}

func writeSources(b *strings.Builder, title string, s []metrics.SourceSummary) {
	if title == "" {
		title = "SOURCES"
	}
	b.WriteString("[" + title + "]\n")
	if len(s) == 0 {
		b.WriteString("No sourced values.\n")
		return
	}
	rows := make([][]string, 0, len(s))
	for _, x := range s {
		rows = append(rows, []string{x.Source, fmt.Sprint(x.Count), num(x.Mean), num(x.Median), num(x.StdDev), num(x.Min), num(x.Max)})
	}
	writeTable(b, []string{"Source", "Count", "Mean", "Median", "Std", "Min", "Max"}, rows)
}

func writeBMI(b *strings.Builder, s *metrics.BMISeries) {
	b.WriteString("[BMI]\n")
	b.WriteString(fmt.Sprintf("Height: %.0f cm\n\n", s.HeightCm))
	rows := make([][]string, 0, len(s.Readings))
	for _, r := range s.Readings {
		rows = append(rows, []string{r.Time.Format("2006-01-02 15:04"), r.Source, num(r.WeightKg), num(r.BMI)})
	}
	writeTable(b, []string{"Time", "Source", "Weight (kg)", "BMI"}, rows)
}

func writeEnergy(b *strings.Builder, days []metrics.EnergyDay) {
	b.WriteString("[ENERGY]\n")
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		rows = append(rows, []string{d.Date.Format(metrics.DateLayout), num(d.Active), num(d.Basal), num(d.Total)})
	}
	writeTable(b, []string{"Date", "Active (kcal)", "Basal (kcal)", "Total (kcal)"}, rows)
}

func writeSleep(b *strings.Builder, s *metrics.SleepSummary) {
	b.WriteString("[SLEEP BY WEEKDAY]\n")
	b.WriteString(fmt.Sprintf("Days observed: %d\n\n", s.DaysObserved))
	rows := make([][]string, 0, len(s.WeeklyAverage))
	for _, d := range s.WeeklyAverage {
		v := "no data"
		if d.HasData && d.Value != nil {
			v = num(*d.Value)
		}
		rows = append(rows, []string{d.Day, v, fmt.Sprint(d.Days)})
	}
	writeTable(b, []string{"Day", "Avg hours", "Nights"}, rows)
	if len(s.ByType) > 0 {
		b.WriteString("\n[SLEEP BY TYPE]\n")
		rows = rows[:0]
		for _, t := range s.ByType {
			rows = append(rows, []string{t.Type, num(t.MeanHours), fmt.Sprint(t.Count)})
		}
		writeTable(b, []string{"Type", "Mean hours", "Records"}, rows)
	}
}

func writeAlignment(b *strings.Builder, a *metrics.Alignment) {
	b.WriteString("[ALIGNED]\n")
	header := append([]string{"Date"}, a.Table.Columns...)
	rows := make([][]string, 0, len(a.Table.Rows))
	for _, r := range a.Table.Rows {
		row := []string{r.Date.Format(metrics.DateLayout)}
		for _, v := range r.Values {
			row = append(row, num(v))
		}
		rows = append(rows, row)
	}
	writeTable(b, header, rows)
	if c := a.Correlation; c != nil {
		b.WriteString("\n[CORRELATION]\n")
		if c.Defined {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f (n=%d)\n", c.A, c.B, c.R, c.N))
		} else {
			b.WriteString(fmt.Sprintf("- %s ~ %s: undefined (%s)\n", c.A, c.B, c.Reason))
		}
	}
}

func writeUnavailable(b *strings.Builder, u *dashboard.Unavailable) {
	b.WriteString(fmt.Sprintf("[%s]\nUnavailable: %s\n", strings.ToUpper(u.Metric), u.Reason))
}

func writePanels(b *strings.Builder, panels []dashboard.Panel) {
	section := ""
	for i, p := range panels {
		if p.Section != section {
			section = p.Section
			b.WriteString(fmt.Sprintf("## %s\n\n", section))
		}
		if p.Unavailable != nil {
			b.WriteString(fmt.Sprintf("[%s]\nUnavailable: %s\n", strings.ToUpper(p.Title), p.Unavailable.Reason))
		} else if src, ok := p.Data.([]metrics.SourceSummary); ok {
			writeSources(b, strings.ToUpper(p.Title), src)
		} else {
			b.WriteString(Markdown(p.Data))
		}
		if i < len(panels)-1 {
			b.WriteString("\n")
		}
	}
}
