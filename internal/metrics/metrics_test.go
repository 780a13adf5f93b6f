package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valueColumns = []string{FieldStart, FieldEnd, FieldSource, FieldValue}

func rec(start, src string, v float64) Record {
	return Record{Start: start, End: start, Source: src, Value: v, HasValue: true}
}

func series(name string, recs ...Record) Series {
	return NewSeries(name, valueColumns, recs)
}

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseTimestamp_StripsOffset(t *testing.T) {
	got, ok := ParseTimestamp("2024-01-01 23:30:00 +0200")
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, day("2024-01-01"), FloorDay(got))

	got, ok = ParseTimestamp("2024-03-05T07:15:00-05:00")
	require.True(t, ok)
	assert.Equal(t, 7, got.Hour())

	_, ok = ParseTimestamp("not a date")
	assert.False(t, ok)
	_, ok = ParseTimestamp("  ")
	assert.False(t, ok)
}

func TestNormalize_Idempotent(t *testing.T) {
	s := series(StepCount,
		rec("2024-01-02 08:00:00 +0100", "phone", 10),
		rec("garbage", "phone", 5),
		rec("2024-01-01 22:59:59 +0100", "watch", 20),
	)
	once := Normalize(s)
	twice := Normalize(once)
	assert.Equal(t, once.Records, twice.Records)
	assert.Equal(t, once.Columns, twice.Columns)

	// inputs stay untouched
	assert.False(t, s.Records[0].Parsed)
	assert.Equal(t, 1, once.Unparsed())
	assert.Equal(t, 3, once.Len())
	assert.Equal(t, time.Monday, once.Records[2].Calendar.DayOfWeek)
}

func TestAggregate_DayOfWeekAxis(t *testing.T) {
	// Sunday first, Wednesday missing
	s := series(StepCount,
		rec("2024-01-07 10:00:00", "phone", 7),
		rec("2024-01-02 10:00:00", "phone", 2),
		rec("2024-01-01 10:00:00", "phone", 1),
		rec("2024-01-05 10:00:00", "phone", 5),
		rec("2024-01-08 09:00:00", "phone", 3),
	)
	agg, err := Aggregate(s, GroupDayOfWeek, Sum, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}, agg.Categories)
	require.Len(t, agg.Buckets, 4)
	assert.Equal(t, "Monday", agg.Buckets[0].Key)
	assert.Equal(t, 4.0, agg.Buckets[0].Value)
	assert.Equal(t, 2, agg.Buckets[0].Count)
	assert.Equal(t, "Tuesday", agg.Buckets[1].Key)
	assert.Equal(t, "Friday", agg.Buckets[2].Key)
	assert.Equal(t, "Sunday", agg.Buckets[3].Key)
	assert.True(t, agg.Ordered)
}

func TestAggregate_DateBySource(t *testing.T) {
	s := series(HeartRate,
		rec("2024-01-02 10:00:00", "watch", 80),
		rec("2024-01-01 10:00:00", "watch", 60),
		rec("2024-01-01 11:00:00", "watch", 70),
		rec("2024-01-01 12:00:00", "phone", 90),
		rec("2024-01-01 13:00:00", "", 1000),
		rec("???", "watch", 1000),
	)
	agg, err := Aggregate(s, GroupDate, Mean, true)
	require.NoError(t, err)
	require.Len(t, agg.Buckets, 3)
	assert.Equal(t, Bucket{Key: "2024-01-01", Rank: agg.Buckets[0].Rank, Source: "phone", Value: 90, Count: 1}, agg.Buckets[0])
	assert.Equal(t, "watch", agg.Buckets[1].Source)
	assert.InDelta(t, 65, agg.Buckets[1].Value, 1e-9)
	assert.Equal(t, "2024-01-02", agg.Buckets[2].Key)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, agg.Categories)
	assert.Equal(t, []string{"phone", "watch"}, agg.Sources())

	all, err := Aggregate(s, GroupDate, Mean, false)
	require.NoError(t, err)
	require.Len(t, all.Buckets, 2)
	assert.InDelta(t, (60+70+90+1000)/4.0, all.Buckets[0].Value, 1e-9)
}

func TestAggregate_MonthNameMergesYears(t *testing.T) {
	s := series(StepCount,
		rec("2023-01-15 10:00:00", "phone", 100),
		rec("2024-01-20 10:00:00", "phone", 50),
		rec("2024-02-01 10:00:00", "phone", 10),
	)
	seasonal, err := Aggregate(s, GroupMonthName, Sum, false)
	require.NoError(t, err)
	require.Len(t, seasonal.Buckets, 2)
	assert.Equal(t, "January", seasonal.Buckets[0].Key)
	assert.Equal(t, 150.0, seasonal.Buckets[0].Value)
	assert.Len(t, seasonal.Categories, 12)

	monthly, err := Aggregate(s, GroupYearMonth, Sum, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-01", "2024-01", "2024-02"}, monthly.Categories)
	assert.Equal(t, []float64{100, 50, 10}, monthly.Values())
}

func TestAggregate_Errors(t *testing.T) {
	_, err := ParseGroupKey("fortnight")
	var uk *UnsupportedGroupKeyError
	require.ErrorAs(t, err, &uk)
	assert.Equal(t, "fortnight", uk.Key)

	_, err = Aggregate(series(StepCount), GroupKey(99), Sum, false)
	require.ErrorAs(t, err, &uk)

	_, err = Aggregate(series(StepCount), GroupDate, ReduceOp(0), false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	noValue := NewSeries(StepCount, []string{FieldStart}, nil)
	_, err = Aggregate(noValue, GroupDate, Sum, false)
	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, FieldValue, mf.Field)
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsUnavailable(uk))
}

func TestParseGroupKey_Aliases(t *testing.T) {
	for in, want := range map[string]GroupKey{
		"date": GroupDate, "Weekday": GroupDayOfWeek, "month": GroupMonthName,
		" year ": GroupYear, "hour": GroupHour, "year_month": GroupYearMonth,
	} {
		got, err := ParseGroupKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestAggregate_Tail(t *testing.T) {
	s := series(StepCount,
		rec("2024-01-01", "a", 1), rec("2024-01-02", "a", 2), rec("2024-01-03", "a", 3), rec("2024-01-03", "b", 4),
	)
	agg, err := Aggregate(s, GroupDate, Sum, true)
	require.NoError(t, err)
	tail := agg.Tail(1)
	assert.Equal(t, []string{"2024-01-03"}, tail.Categories)
	assert.Len(t, tail.Buckets, 2)
	assert.Len(t, agg.Buckets, 4)
}

func TestDailyAverage(t *testing.T) {
	s := series(StepCount,
		rec("2024-01-01 08:00:00", "a", 100), rec("2024-01-01 20:00:00", "a", 300), rec("2024-01-02 09:00:00", "a", 200),
	)
	avg, ok, err := DailyAverage(s, Sum)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 300, avg, 1e-9)

	_, ok, err = DailyAverage(series(StepCount), Sum)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTotalEnergy_OuterJoin(t *testing.T) {
	active := series(ActiveEnergyBurned,
		rec("2024-01-01 08:00:00", "w", 100), rec("2024-01-01 18:00:00", "w", 50), rec("2024-01-02 08:00:00", "w", 30),
	)
	basal := series(BasalEnergyBurned,
		rec("2024-01-02 08:00:00", "w", 1500), rec("2024-01-03 08:00:00", "w", 1400),
	)
	days, err := TotalEnergy(active, basal)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, EnergyDay{Date: day("2024-01-01"), Active: 150, Basal: 0, Total: 150}, days[0])
	assert.Equal(t, EnergyDay{Date: day("2024-01-02"), Active: 30, Basal: 1500, Total: 1530}, days[1])
	assert.Equal(t, EnergyDay{Date: day("2024-01-03"), Active: 0, Basal: 1400, Total: 1400}, days[2])

	es := EnergySeries(days)
	assert.Equal(t, DerivedTotalEnergy, es.Name)
	assert.Equal(t, 3, es.Len())
}

func TestBMI(t *testing.T) {
	w := series(BodyMass, rec("2024-01-02 07:00:00", "scale", 71), rec("2024-01-01 07:00:00", "scale", 70))
	out, err := BMI(w, 176)
	require.NoError(t, err)
	require.Len(t, out.Readings, 2)
	assert.Equal(t, 70.0, out.Readings[0].WeightKg)
	assert.InDelta(t, 22.6, out.Readings[0].BMI, 0.05)

	_, err = BMI(w, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSleep_MissingWeekdayKeepsRow(t *testing.T) {
	cols := []string{FieldStart, FieldEnd, FieldSource, FieldSleepType, FieldSleepDurationHours}
	sl := func(start, typ, hours string) Record {
		return Record{Start: start, Source: "watch", Fields: map[string]string{FieldSleepType: typ, FieldSleepDurationHours: hours}}
	}
	s := NewSeries(SleepAnalysis, cols, []Record{
		sl("2024-01-01 23:00:00", "Core", "3"),
		sl("2024-01-01 02:00:00", "Deep", "1"),
		sl("2024-01-08 01:00:00", "Core", "6"),
		sl("2024-01-03 01:00:00", "REM", "2"),
		sl("bad", "Core", "9"),
	})
	sum, err := Sleep(s)
	require.NoError(t, err)
	require.Len(t, sum.WeeklyAverage, 7)

	mon := sum.WeeklyAverage[0]
	assert.Equal(t, "Monday", mon.Day)
	require.NotNil(t, mon.Value)
	assert.InDelta(t, 5, *mon.Value, 1e-9) // (4 + 6) / 2
	assert.Equal(t, 2, mon.Days)

	tue := sum.WeeklyAverage[1]
	assert.Equal(t, "Tuesday", tue.Day)
	assert.False(t, tue.HasData)
	assert.Nil(t, tue.Value)

	assert.Equal(t, 3, sum.DaysObserved)
	require.Len(t, sum.ByType, 3)
	assert.Equal(t, TypeValue{Type: "Core", MeanHours: 4.5, Count: 2}, sum.ByType[0])

	_, err = Sleep(series(SleepAnalysis))
	assert.True(t, IsUnavailable(err))
}

func TestSleepHours(t *testing.T) {
	cols := []string{FieldStart, FieldSleepDurationHours}
	s := NewSeries(SleepAnalysis, cols, []Record{
		{Start: "2024-01-01", Fields: map[string]string{FieldSleepDurationHours: "7.5"}},
		{Start: "2024-01-02", Fields: map[string]string{FieldSleepDurationHours: "n/a"}},
	})
	out, err := SleepHours(s)
	require.NoError(t, err)
	assert.True(t, out.Has(FieldValue))
	assert.False(t, s.Has(FieldValue))
	assert.Equal(t, 7.5, out.Records[0].Value)
	assert.False(t, out.Records[1].HasValue)
}

func TestAlign_Scenario(t *testing.T) {
	a := series("A", rec("2024-01-01", "src1", 100), rec("2024-01-02", "src1", 200))
	b := series("B", rec("2024-01-01", "src1", 10), rec("2024-01-02", "src1", 20))
	out, err := Align(NamedSeries{"A", a}, NamedSeries{"B", b})
	require.NoError(t, err)
	assert.Len(t, out.Table.Rows, 2)
	require.NotNil(t, out.Correlation)
	assert.True(t, out.Correlation.Defined)
	assert.InDelta(t, 1.0, out.Correlation.R, 1e-12)
	assert.Equal(t, 2, out.Correlation.N)
}

func TestAlign_InnerJoinUsesDailyMeans(t *testing.T) {
	a := series("A",
		rec("2024-01-01 08:00:00", "x", 100), rec("2024-01-01 09:00:00", "x", 300),
		rec("2024-01-02", "x", 50), rec("2024-01-04", "x", 10),
	)
	b := series("B", rec("2024-01-02", "x", 5), rec("2024-01-01", "x", 1), rec("2024-01-03", "x", 9))
	out, err := Align(NamedSeries{"A", a}, NamedSeries{"B", b})
	require.NoError(t, err)
	require.Len(t, out.Table.Rows, 2)
	assert.Equal(t, day("2024-01-01"), out.Table.Rows[0].Date)
	assert.Equal(t, []float64{200, 1}, out.Table.Rows[0].Values)
	assert.Equal(t, []float64{50, 5}, out.Table.Rows[1].Values)
	assert.Equal(t, []string{"A", "B"}, out.Table.Columns)
}

func TestAlign_NoOverlap(t *testing.T) {
	a := series("A", rec("2024-01-01", "x", 1))
	b := series("B", rec("2024-02-01", "x", 1))
	out, err := Align(NamedSeries{"A", a}, NamedSeries{"B", b})
	assert.Nil(t, out)
	var no *NoOverlapError
	require.ErrorAs(t, err, &no)
	assert.Equal(t, []string{"A", "B"}, no.Series)
	assert.True(t, IsUnavailable(err))
}

func TestAlign_InvalidInputs(t *testing.T) {
	a := series("A", rec("2024-01-01", "x", 1))
	_, err := Align(NamedSeries{"A", a})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Align(NamedSeries{"A", a}, NamedSeries{"A", a})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	three, err := Align(NamedSeries{"A", a}, NamedSeries{"B", a}, NamedSeries{"C", a})
	require.NoError(t, err)
	assert.Nil(t, three.Correlation)
	assert.Len(t, three.Table.Columns, 3)
}

func TestCorrelate(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	c := Correlate("x", "x", x, x)
	assert.True(t, c.Defined)
	assert.InDelta(t, 1.0, c.R, 1e-12)

	c = Correlate("x", "neg", x, []float64{4, 3, 2, 1})
	assert.InDelta(t, -1.0, c.R, 1e-12)

	c = Correlate("x", "flat", x, []float64{5, 5, 5, 5})
	assert.False(t, c.Defined)
	assert.Contains(t, c.Reason, "flat")

	c = Correlate("x", "y", []float64{1}, []float64{2})
	assert.False(t, c.Defined)
}

func TestAlign_ConstantDailyMeansAreUndefined(t *testing.T) {
	a := series("A",
		rec("2024-01-01 08:00:00", "x", 0.1), rec("2024-01-01 09:00:00", "x", 0.1), rec("2024-01-01 10:00:00", "x", 0.1),
		rec("2024-01-02 08:00:00", "x", 0.1),
		rec("2024-01-03 08:00:00", "x", 0.1), rec("2024-01-03 09:00:00", "x", 0.1), rec("2024-01-03 10:00:00", "x", 0.1),
	)
	b := series("B", rec("2024-01-01", "x", 1), rec("2024-01-02", "x", 5), rec("2024-01-03", "x", 2))
	out, err := Align(NamedSeries{"A", a}, NamedSeries{"B", b})
	require.NoError(t, err)
	require.Len(t, out.Table.Rows, 3)
	require.NotNil(t, out.Correlation)
	assert.False(t, out.Correlation.Defined)
	assert.Equal(t, "zero variance in A", out.Correlation.Reason)

	c := Correlate("x", "tiny", []float64{1, 2, 3}, []float64{1e-6, 2e-6, 3e-6})
	assert.True(t, c.Defined)
}

func TestParseNumeric(t *testing.T) {
	cases := map[string]float64{
		"12":         12,
		"0,5":        0.5,
		"1.000,25":   1000.25,
		"1,000.25":   1000.25,
		"1e3":        1000,
		" 7.25 ":     7.25,
		"1\u00a0200": 1200,
	}
	for in, want := range cases {
		got, ok := ParseNumeric(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	for _, in := range []string{"n/a", "", "NaN", "nan", "Inf", "-Infinity"} {
		_, ok := ParseNumeric(in)
		assert.False(t, ok, in)
	}
}

func TestSleepHours_CommaDecimal(t *testing.T) {
	s := NewSeries(SleepAnalysis, []string{FieldStart, FieldSleepType, FieldSleepDurationHours}, []Record{
		{Start: "2024-01-01 23:00:00", Fields: map[string]string{FieldSleepType: "Core", FieldSleepDurationHours: "7,5"}},
	})
	h, err := SleepHours(s)
	require.NoError(t, err)
	require.True(t, h.Records[0].HasValue)
	assert.Equal(t, 7.5, h.Records[0].Value)
}

func TestFilters(t *testing.T) {
	s := series(StepCount,
		rec("2024-01-01", "phone", 1), rec("2024-01-05", "watch", 2),
		rec("2024-01-09", "phone", 3), rec("2024-01-10", "watch", 4), rec("bad", "phone", 5),
	)
	assert.Equal(t, []string{"phone", "watch"}, Sources(s))
	assert.Equal(t, 3, FilterSources(s, "phone").Len())
	assert.Equal(t, 5, FilterSources(s).Len())

	d, err := ParseLookback("P7D")
	require.NoError(t, err)
	recent := FilterLookback(s, d)
	first, last, ok := DateRange(recent)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-05"), first)
	assert.Equal(t, day("2024-01-10"), last)
	assert.Equal(t, 3, recent.Len())

	from, err := ParseDate("2024-01-02")
	require.NoError(t, err)
	to, err := ParseDate("2024-01-09 23:00:00")
	require.NoError(t, err)
	assert.Equal(t, 2, FilterDateRange(s, from, to).Len())

	_, err = ParseLookback("seven days")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDatasets_Get(t *testing.T) {
	ds := Datasets{StepCount: series(StepCount)}
	_, err := ds.Get(HeartRate)
	var md *MissingDatasetError
	require.True(t, errors.As(err, &md))
	assert.Equal(t, HeartRate, md.Dataset)
	assert.Equal(t, []string{StepCount}, ds.Names())
}

func TestSummarizeSources(t *testing.T) {
	s := series(HeartRate, rec("2024-01-01", "a", 60), rec("2024-01-02", "a", 80), rec("2024-01-01", "b", 90))
	out, err := SummarizeSources(s)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Source)
	assert.Equal(t, 0.0, out[0].StdDev)
	assert.Equal(t, 70.0, out[1].Mean)
	assert.Equal(t, 2, out[1].Count)
	assert.Equal(t, 60.0, out[1].Min)
}
