package dashboard

import (
	"strconv"

	"github.com/gosimple/slug"

	"github.com/KaramelBytes/healthloom-cli/internal/memo"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// KPI is one headline figure. When Available is false Value is meaningless.
type KPI struct {
	ID        string  `json:"id" yaml:"id"`
	Label     string  `json:"label" yaml:"label"`
	Value     float64 `json:"value" yaml:"value"`
	Unit      string  `json:"unit" yaml:"unit"`
	Available bool    `json:"available" yaml:"available"`
	Reason    string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Overview is the landing view: headline KPIs and the latest days of steps.
type Overview struct {
	KPIs        []KPI                     `json:"kpis" yaml:"kpis"`
	RecentSteps *metrics.AggregatedSeries `json:"recent_steps,omitempty" yaml:"recent_steps,omitempty"`
	Unavailable []Unavailable             `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

func (o *Overview) add(label, unit string, v float64, ok bool, err error) error {
	k := KPI{ID: slug.Make(label), Label: label, Unit: unit}
	switch {
	case err != nil:
		u := AsUnavailable(label, err)
		if u == nil {
			return err
		}
		k.Reason = u.Reason
		o.Unavailable = append(o.Unavailable, *u)
	case !ok:
		k.Reason = "no dated values"
	default:
		k.Value, k.Available = v, true
	}
	o.KPIs = append(o.KPIs, k)
	return nil
}

type dailyAvg struct {
	v  float64
	ok bool
}

// dailyAverage averages the per-day reduction of dataset, restricted to its
// canonical sources when asked.
func (e *Engine) dailyAverage(dataset string, canonical bool) (float64, bool, error) {
	op, err := metrics.ReduceFor(dataset)
	if err != nil {
		return 0, false, err
	}
	keep := allSources
	if canonical {
		keep = e.canonical
	}
	key := memo.NewKey("daily-average", dataset, e.fingerprint(dataset), strconv.FormatBool(canonical))
	r, err := memo.Do(e.cache, key, func() (dailyAvg, error) {
		s, err := e.series(dataset, keep)
		if err != nil {
			return dailyAvg{}, err
		}
		v, ok, err := metrics.DailyAverage(s, op)
		return dailyAvg{v, ok}, err
	})
	return r.v, r.ok, err
}

// Overview computes the headline KPIs. Missing datasets produce unavailable
// KPIs rather than an error.
func (e *Engine) Overview() (*Overview, error) {
	o := &Overview{}

	v, ok, err := e.dailyAverage(metrics.HeartRate, false)
	if err := o.add("Average heart rate", "bpm", v, ok, err); err != nil {
		return nil, err
	}
	v, ok, err = e.dailyAverage(metrics.StepCount, true)
	if err := o.add("Average daily steps", "steps", v, ok, err); err != nil {
		return nil, err
	}
	v, ok, err = e.dailyAverage(metrics.DerivedTotalEnergy, true)
	if err := o.add("Average daily energy", "kcal", v, ok, err); err != nil {
		return nil, err
	}
	v, ok, err = e.dailyAverage(metrics.SleepAnalysis, true)
	if err := o.add("Average sleep", "h", v, ok, err); err != nil {
		return nil, err
	}
	v, ok, err = e.dailyAverage(metrics.WalkingSpeed, false)
	if err := o.add("Average walking speed", "km/h", v, ok, err); err != nil {
		return nil, err
	}

	steps, err := e.Aggregate(AggregateRequest{
		Dataset: metrics.StepCount,
		GroupBy: metrics.GroupDate,
		Sources: e.canonical(metrics.StepCount),
	})
	if err != nil {
		u := AsUnavailable("Recent steps", err)
		if u == nil {
			return nil, err
		}
		o.Unavailable = append(o.Unavailable, *u)
	} else {
		o.RecentSteps = steps.Tail(e.opt.LastDays)
	}
	return o, nil
}
