package metrics

import "fmt"

// Dataset identifiers as they appear in an export bundle.
const (
	StepCount                  = "StepCount"
	DistanceWalkingRunner      = "DistanceWalkingRunner"
	ActiveEnergyBurned         = "ActiveEnergyBurned"
	BasalEnergyBurned          = "BasalEnergyBurned"
	SleepAnalysis              = "SleepAnalysis"
	HeartRate                  = "HeartRate"
	WalkingSpeed               = "WalkingSpeed"
	WalkingStepLength          = "WalkingStepLength"
	VO2Max                     = "VO2Max"
	HeartRateVariabilitySDNN   = "HeartRateVariabilitySDNN"
	OxygenSaturation           = "OxygenSaturation"
	RespiratoryRate            = "RespiratoryRate"
	WalkingHeartRateAverage    = "WalkingHeartRateAverage"
	RestingHeartRate           = "RestingHeartRate"
	HeartRateRecoveryOneMinute = "HeartRateRecoveryOneMinute"
	BodyMass                   = "BodyMass"

	// DerivedTotalEnergy names the derived active+basal series.
	DerivedTotalEnergy = "TotalEnergy"
)

// Metric describes how a dataset is reduced. Additive quantities are summed;
// rates and intensities are averaged.
type Metric struct {
	Dataset string   `json:"dataset" yaml:"dataset"`
	Label   string   `json:"label" yaml:"label"`
	Unit    string   `json:"unit" yaml:"unit"`
	Reduce  ReduceOp `json:"reduce" yaml:"reduce"`
}

var catalog = []Metric{
	{Dataset: StepCount, Label: "Steps", Unit: "count", Reduce: Sum},
	{Dataset: DistanceWalkingRunner, Label: "Walking distance", Unit: "km", Reduce: Sum},
	{Dataset: ActiveEnergyBurned, Label: "Active energy", Unit: "kcal", Reduce: Sum},
	{Dataset: BasalEnergyBurned, Label: "Basal energy", Unit: "kcal", Reduce: Sum},
	{Dataset: DerivedTotalEnergy, Label: "Total energy", Unit: "kcal", Reduce: Sum},
	{Dataset: SleepAnalysis, Label: "Sleep duration", Unit: "h", Reduce: Sum},
	{Dataset: HeartRate, Label: "Heart rate", Unit: "bpm", Reduce: Mean},
	{Dataset: WalkingSpeed, Label: "Walking speed", Unit: "km/h", Reduce: Mean},
	{Dataset: WalkingStepLength, Label: "Step length", Unit: "cm", Reduce: Mean},
	{Dataset: VO2Max, Label: "VO2Max", Unit: "mL/kg/min", Reduce: Mean},
	{Dataset: HeartRateVariabilitySDNN, Label: "HRV", Unit: "ms", Reduce: Mean},
	{Dataset: OxygenSaturation, Label: "SpO2", Unit: "%", Reduce: Mean},
	{Dataset: RespiratoryRate, Label: "Respiratory rate", Unit: "count/min", Reduce: Mean},
	{Dataset: WalkingHeartRateAverage, Label: "Walking heart rate", Unit: "bpm", Reduce: Mean},
	{Dataset: RestingHeartRate, Label: "Resting heart rate", Unit: "bpm", Reduce: Mean},
	{Dataset: HeartRateRecoveryOneMinute, Label: "Heart rate recovery", Unit: "bpm", Reduce: Mean},
	{Dataset: BodyMass, Label: "Body mass", Unit: "kg", Reduce: Mean},
}

// Catalog returns every known metric in display order.
func Catalog() []Metric { return append([]Metric(nil), catalog...) }

// Lookup finds the catalog entry for a dataset.
func Lookup(dataset string) (Metric, bool) {
	for _, m := range catalog {
		if m.Dataset == dataset {
			return m, true
		}
	}
	return Metric{}, false
}

// ReduceFor returns the reduce op fixed for dataset by the catalog.
func ReduceFor(dataset string) (ReduceOp, error) {
	m, ok := Lookup(dataset)
	if !ok {
		return 0, fmt.Errorf("%w: no reduce rule for dataset %q", ErrInvalidArgument, dataset)
	}
	return m.Reduce, nil
}
