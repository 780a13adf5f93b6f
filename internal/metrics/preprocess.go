package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// BMIReading is one weight record with its body mass index.
type BMIReading struct {
	Date     time.Time `json:"date" yaml:"date"`
	Time     time.Time `json:"time" yaml:"time"`
	Source   string    `json:"source,omitempty" yaml:"source,omitempty"`
	WeightKg float64   `json:"weight_kg" yaml:"weight_kg"`
	BMI      float64   `json:"bmi" yaml:"bmi"`
}

// BMISeries is the BMI derivation of a weight series.
type BMISeries struct {
	HeightCm float64      `json:"height_cm" yaml:"height_cm"`
	Readings []BMIReading `json:"readings" yaml:"readings"`
}

// BMI computes weightKg / heightM² for every dated weight record, ordered by time.
func BMI(weight Series, heightCm float64) (*BMISeries, error) {
	if heightCm <= 0 || math.IsNaN(heightCm) || math.IsInf(heightCm, 0) {
		return nil, fmt.Errorf("%w: height %v cm", ErrInvalidArgument, heightCm)
	}
	if err := weight.Require(FieldValue); err != nil {
		return nil, err
	}
	weight = ensureNormalized(weight)
	m := heightCm / 100
	out := &BMISeries{HeightCm: heightCm}
	for _, r := range weight.Records {
		if !r.Parsed || !r.HasValue {
			continue
		}
		out.Readings = append(out.Readings, BMIReading{
			Date:     r.Calendar.Date,
			Time:     r.Time,
			Source:   r.Source,
			WeightKg: r.Value,
			BMI:      r.Value / (m * m),
		})
	}
	sort.SliceStable(out.Readings, func(i, j int) bool {
		return out.Readings[i].Time.Before(out.Readings[j].Time)
	})
	return out, nil
}

// EnergyDay is one day of the active/basal energy composition.
type EnergyDay struct {
	Date   time.Time `json:"date" yaml:"date"`
	Active float64   `json:"active" yaml:"active"`
	Basal  float64   `json:"basal" yaml:"basal"`
	Total  float64   `json:"total" yaml:"total"`
}

// dailySums sums values per calendar date.
func dailySums(s Series) map[time.Time]float64 {
	s = ensureNormalized(s)
	out := map[time.Time]float64{}
	for _, r := range s.Records {
		if !r.Parsed || !r.HasValue {
			continue
		}
		out[r.Calendar.Date] += r.Value
	}
	return out
}

// TotalEnergy sums active and basal energy per day and outer-joins them on
// date. A day present on one side only gets zero for the other.
func TotalEnergy(active, basal Series) ([]EnergyDay, error) {
	if err := active.Require(FieldValue); err != nil {
		return nil, err
	}
	if err := basal.Require(FieldValue); err != nil {
		return nil, err
	}
	a, b := dailySums(active), dailySums(basal)
	days := make(map[time.Time]struct{}, len(a)+len(b))
	for d := range a {
		days[d] = struct{}{}
	}
	for d := range b {
		days[d] = struct{}{}
	}
	out := make([]EnergyDay, 0, len(days))
	for d := range days {
		out = append(out, EnergyDay{Date: d, Active: a[d], Basal: b[d], Total: a[d] + b[d]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// EnergySeries exposes daily totals as a series so they can be aligned with
// other metrics.
func EnergySeries(days []EnergyDay) Series {
	recs := make([]Record, len(days))
	for i, d := range days {
		recs[i] = Record{Start: d.Date.Format(DateLayout), Value: d.Total, HasValue: true}
	}
	return Normalize(NewSeries(DerivedTotalEnergy, []string{FieldStart, FieldValue}, recs))
}

// DayValue is one row of a day-of-week table. Weekdays without observations
// keep their row with HasData false and a nil Value.
type DayValue struct {
	Day     string   `json:"day" yaml:"day"`
	Value   *float64 `json:"value" yaml:"value"`
	HasData bool     `json:"has_data" yaml:"has_data"`
	Days    int      `json:"days" yaml:"days"`
}

// TypeValue is the mean duration of one sleep stage.
type TypeValue struct {
	Type      string  `json:"type" yaml:"type"`
	MeanHours float64 `json:"mean_hours" yaml:"mean_hours"`
	Count     int     `json:"count" yaml:"count"`
}

// SleepSummary is the sleep derivation: weekly pattern and stage distribution.
type SleepSummary struct {
	WeeklyAverage []DayValue  `json:"weekly_average" yaml:"weekly_average"`
	ByType        []TypeValue `json:"by_type" yaml:"by_type"`
	DaysObserved  int         `json:"days_observed" yaml:"days_observed"`
}

// Sleep derives the average nightly total per weekday (daily totals first,
// then the mean of those totals per weekday, always seven rows Monday first)
// and the mean record duration per sleep type.
func Sleep(s Series) (*SleepSummary, error) {
	if err := s.Require(FieldSleepDurationHours, FieldSleepType); err != nil {
		return nil, err
	}
	s = ensureNormalized(s)

	daily := map[time.Time]float64{}
	byType := map[string][]float64{}
	for _, r := range s.Records {
		if !r.Parsed {
			continue
		}
		h, ok := r.fieldFloat(FieldSleepDurationHours)
		if !ok {
			continue
		}
		daily[r.Calendar.Date] += h
		if st, _ := r.Field(FieldSleepType); st != "" {
			byType[st] = append(byType[st], h)
		}
	}

	var perDay [7][]float64
	for d, total := range daily {
		i := dowIndex(d.Weekday())
		perDay[i] = append(perDay[i], total)
	}
	out := &SleepSummary{DaysObserved: len(daily)}
	for i, name := range weekdayOrder {
		row := DayValue{Day: name, Days: len(perDay[i])}
		if len(perDay[i]) > 0 {
			v := stat.Mean(perDay[i], nil)
			row.Value = &v
			row.HasData = true
		}
		out.WeeklyAverage = append(out.WeeklyAverage, row)
	}
	for t, hs := range byType {
		out.ByType = append(out.ByType, TypeValue{Type: t, MeanHours: stat.Mean(hs, nil), Count: len(hs)})
	}
	sort.Slice(out.ByType, func(i, j int) bool { return out.ByType[i].Type < out.ByType[j].Type })
	return out, nil
}

// SleepHours returns a copy of s whose value is the record's sleep duration in
// hours, so sleep can be aggregated and aligned like any other metric.
func SleepHours(s Series) (Series, error) {
	if err := s.Require(FieldSleepDurationHours); err != nil {
		return Series{}, err
	}
	out := s.clone().withColumn(FieldValue)
	for i := range out.Records {
		h, ok := out.Records[i].fieldFloat(FieldSleepDurationHours)
		out.Records[i].Value, out.Records[i].HasValue = h, ok
	}
	return out, nil
}
