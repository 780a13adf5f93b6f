package dashboard

import (
	"github.com/gosimple/slug"

	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// Panel is one rendered view. Exactly one of Data and Unavailable is set.
type Panel struct {
	ID          string       `json:"id" yaml:"id"`
	Section     string       `json:"section" yaml:"section"`
	Title       string       `json:"title" yaml:"title"`
	Kind        string       `json:"kind" yaml:"kind"`
	Data        any          `json:"data,omitempty" yaml:"data,omitempty"`
	Unavailable *Unavailable `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// Panel kinds.
const (
	KindAggregate = "aggregate"
	KindSources   = "sources"
	KindBMI       = "bmi"
	KindEnergy    = "energy"
	KindSleep     = "sleep"
)

type panelDef struct {
	section string
	title   string
	kind    string
	build   func(e *Engine) (any, error)
}

func aggregatePanel(section, title, dataset string, key metrics.GroupKey) panelDef {
	return panelDef{section: section, title: title, kind: KindAggregate, build: func(e *Engine) (any, error) {
		return e.Aggregate(AggregateRequest{Dataset: dataset, GroupBy: key})
	}}
}

func sourcesPanel(section, title, dataset string) panelDef {
	return panelDef{section: section, title: title, kind: KindSources, build: func(e *Engine) (any, error) {
		return e.Sources(dataset)
	}}
}

var panelDefs = []panelDef{
	aggregatePanel("Activity", "Daily steps", metrics.StepCount, metrics.GroupDate),
	aggregatePanel("Activity", "Steps by month", metrics.StepCount, metrics.GroupMonthName),
	aggregatePanel("Activity", "Steps by year", metrics.StepCount, metrics.GroupYear),
	aggregatePanel("Activity", "Steps by hour", metrics.StepCount, metrics.GroupHour),
	aggregatePanel("Activity", "Steps by weekday", metrics.StepCount, metrics.GroupDayOfWeek),
	aggregatePanel("Activity", "Daily walking distance", metrics.DistanceWalkingRunner, metrics.GroupDate),
	sourcesPanel("Activity", "Walking speed by source", metrics.WalkingSpeed),
	sourcesPanel("Activity", "Step length by source", metrics.WalkingStepLength),
	sourcesPanel("Activity", "Steps by source", metrics.StepCount),

	aggregatePanel("Heart & body", "Daily heart rate", metrics.HeartRate, metrics.GroupDate),
	{section: "Heart & body", title: "BMI", kind: KindBMI, build: func(e *Engine) (any, error) { return e.BMI() }},
	aggregatePanel("Heart & body", "Monthly weight", metrics.BodyMass, metrics.GroupMonthName),
	{section: "Heart & body", title: "Daily energy", kind: KindEnergy, build: func(e *Engine) (any, error) { return e.Energy() }},
	{section: "Heart & body", title: "Active energy by weekday", kind: KindAggregate, build: func(e *Engine) (any, error) {
		return e.EnergyByDOW()
	}},
	aggregatePanel("Heart & body", "VO2Max", metrics.VO2Max, metrics.GroupDate),
	aggregatePanel("Heart & body", "Heart rate variability", metrics.HeartRateVariabilitySDNN, metrics.GroupDate),
	aggregatePanel("Heart & body", "Oxygen saturation", metrics.OxygenSaturation, metrics.GroupDate),
	aggregatePanel("Heart & body", "Respiratory rate", metrics.RespiratoryRate, metrics.GroupDate),
	aggregatePanel("Heart & body", "Walking heart rate", metrics.WalkingHeartRateAverage, metrics.GroupDate),
	aggregatePanel("Heart & body", "Resting heart rate", metrics.RestingHeartRate, metrics.GroupDate),
	aggregatePanel("Heart & body", "Heart rate recovery", metrics.HeartRateRecoveryOneMinute, metrics.GroupDate),

	{section: "Sleep", title: "Sleep", kind: KindSleep, build: func(e *Engine) (any, error) { return e.Sleep() }},
}

// Panels computes every dashboard view. A panel whose data is missing is
// returned with Unavailable set; only unexpected errors abort.
func (e *Engine) Panels() ([]Panel, error) {
	out := make([]Panel, 0, len(panelDefs))
	for _, def := range panelDefs {
		p := Panel{ID: slug.Make(def.title), Section: def.section, Title: def.title, Kind: def.kind}
		data, err := def.build(e)
		if err != nil {
			u := AsUnavailable(def.title, err)
			if u == nil {
				return nil, err
			}
			p.Unavailable = u
		} else {
			p.Data = data
		}
		out = append(out, p)
	}
	return out, nil
}

// PanelIDs lists panel identifiers in display order.
func PanelIDs() []string {
	ids := make([]string, len(panelDefs))
	for i, def := range panelDefs {
		ids[i] = slug.Make(def.title)
	}
	return ids
}
