// Package dashboard assembles metric views from a loaded bundle. It is the
// boundary where per-metric failures become explicit "unavailable" results,
// so one missing dataset never prevents the others from rendering.
package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/healthloom-cli/internal/logger"
	"github.com/KaramelBytes/healthloom-cli/internal/memo"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// Options carries configuration the views depend on.
type Options struct {
	HeightCm         float64
	CanonicalSources map[string][]string
	LastDays         int
}

// Engine computes views over an immutable dataset mapping.
type Engine struct {
	ds    metrics.Datasets
	opt   Options
	cache *memo.Cache

	mu  sync.Mutex
	fps map[string]string
}

// New creates an engine. A nil cache disables memoization.
func New(ds metrics.Datasets, opt Options, cache *memo.Cache) *Engine {
	if ds == nil {
		ds = metrics.Datasets{}
	}
	if opt.LastDays <= 0 {
		opt.LastDays = 7
	}
	return &Engine{ds: ds, opt: opt, cache: cache, fps: map[string]string{}}
}

// Datasets exposes the underlying mapping.
func (e *Engine) Datasets() metrics.Datasets { return e.ds }

// CacheStats reports memoization usage.
func (e *Engine) CacheStats() memo.Stats { return e.cache.Stats() }

// Unavailable explains why a metric could not be produced.
type Unavailable struct {
	Metric string `json:"metric" yaml:"metric"`
	Reason string `json:"reason" yaml:"reason"`
}

// AsUnavailable converts a missing-data error into an Unavailable marker.
// It returns nil for any other error, which callers must treat as a failure.
func AsUnavailable(metric string, err error) *Unavailable {
	if !metrics.IsUnavailable(err) {
		return nil
	}
	logger.Info().Str("metric", metric).Err(err).Msg("metric unavailable")
	return &Unavailable{Metric: metric, Reason: err.Error()}
}

// canonical returns the configured device names for dataset, matching case-insensitively.
func (e *Engine) canonical(dataset string) []string {
	if s, ok := e.opt.CanonicalSources[dataset]; ok {
		return s
	}
	for k, s := range e.opt.CanonicalSources {
		if strings.EqualFold(k, dataset) {
			return s
		}
	}
	return nil
}

func (e *Engine) fingerprint(dataset string) string {
	if dataset == metrics.DerivedTotalEnergy {
		return e.fingerprint(metrics.ActiveEnergyBurned) + "+" + e.fingerprint(metrics.BasalEnergyBurned)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if fp, ok := e.fps[dataset]; ok {
		return fp
	}
	s, ok := e.ds[dataset]
	if !ok {
		return "-"
	}
	fp := memo.Fingerprint(s)
	e.fps[dataset] = fp
	return fp
}

// sourcesFor picks the sources kept for a dataset; nil keeps every source.
type sourcesFor func(dataset string) []string

func allSources(string) []string { return nil }

// series resolves a dataset name restricted to keep(name), including the
// derived total energy series and sleep records re-expressed as hours. Total
// energy records carry no source, so its inputs are filtered before the join.
func (e *Engine) series(dataset string, keep sourcesFor) (metrics.Series, error) {
	switch dataset {
	case metrics.DerivedTotalEnergy:
		days, err := e.energy(keep(metrics.ActiveEnergyBurned), keep(metrics.BasalEnergyBurned))
		if err != nil {
			return metrics.Series{}, err
		}
		return metrics.EnergySeries(days), nil
	case metrics.SleepAnalysis:
		s, err := e.ds.Get(dataset)
		if err != nil {
			return metrics.Series{}, err
		}
		return metrics.SleepHours(metrics.FilterSources(s, keep(dataset)...))
	}
	s, err := e.ds.Get(dataset)
	if err != nil {
		return metrics.Series{}, err
	}
	return metrics.Normalize(metrics.FilterSources(s, keep(dataset)...)), nil
}

// Window narrows a series in time. Lookback counts back from the latest
// date in the data and is applied after From/To.
type Window struct {
	From     time.Time
	To       time.Time
	Lookback time.Duration
}

// ParseWindow builds a Window from an ISO-8601 lookback and two date bounds.
// Empty strings leave the corresponding bound open.
func ParseWindow(since, from, to string) (Window, error) {
	var w Window
	var err error
	if w.Lookback, err = metrics.ParseLookback(since); err != nil {
		return w, err
	}
	if w.From, err = metrics.ParseDate(from); err != nil {
		return w, err
	}
	if w.To, err = metrics.ParseDate(to); err != nil {
		return w, err
	}
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return w, fmt.Errorf("%w: window ends before it starts", metrics.ErrInvalidArgument)
	}
	return w, nil
}

func (w Window) apply(s metrics.Series) metrics.Series {
	s = metrics.FilterDateRange(s, w.From, w.To)
	return metrics.FilterLookback(s, w.Lookback)
}

func (w Window) key() string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(metrics.DateLayout)
	}
	return f(w.From) + ".." + f(w.To) + "/" + w.Lookback.String()
}

// AggregateRequest parameterizes Aggregate. A zero Reduce uses the catalog
// rule. Sources restricts the dataset, or both inputs of total energy.
type AggregateRequest struct {
	Dataset  string
	GroupBy  metrics.GroupKey
	Reduce   metrics.ReduceOp
	BySource bool
	Sources  []string
	Window   Window
}

// Aggregate filters and groups one dataset.
func (e *Engine) Aggregate(req AggregateRequest) (*metrics.AggregatedSeries, error) {
	op := req.Reduce
	if op == 0 {
		var err error
		if op, err = metrics.ReduceFor(req.Dataset); err != nil {
			return nil, err
		}
	}
	key := memo.NewKey("aggregate", req.Dataset, e.fingerprint(req.Dataset), req.GroupBy.String(), op.String(),
		strconv.FormatBool(req.BySource), strings.Join(req.Sources, "\x00"), req.Window.key())
	return memo.Do(e.cache, key, func() (*metrics.AggregatedSeries, error) {
		s, err := e.series(req.Dataset, func(string) []string { return req.Sources })
		if err != nil {
			return nil, err
		}
		return metrics.Aggregate(req.Window.apply(s), req.GroupBy, op, req.BySource)
	})
}

// Sources summarizes each device's contribution to dataset.
func (e *Engine) Sources(dataset string) ([]metrics.SourceSummary, error) {
	key := memo.NewKey("sources", dataset, e.fingerprint(dataset))
	return memo.Do(e.cache, key, func() ([]metrics.SourceSummary, error) {
		s, err := e.series(dataset, allSources)
		if err != nil {
			return nil, err
		}
		return metrics.SummarizeSources(s)
	})
}

// BMI derives body mass index from the weight dataset and the configured height.
func (e *Engine) BMI() (*metrics.BMISeries, error) {
	key := memo.NewKey("bmi", e.fingerprint(metrics.BodyMass), strconv.FormatFloat(e.opt.HeightCm, 'g', -1, 64))
	return memo.Do(e.cache, key, func() (*metrics.BMISeries, error) {
		s, err := e.ds.Get(metrics.BodyMass)
		if err != nil {
			return nil, err
		}
		return metrics.BMI(s, e.opt.HeightCm)
	})
}

// Energy returns daily active, basal and total energy, each side restricted
// to its canonical sources when configured.
func (e *Engine) Energy() ([]metrics.EnergyDay, error) {
	return e.energy(e.canonical(metrics.ActiveEnergyBurned), e.canonical(metrics.BasalEnergyBurned))
}

func (e *Engine) energy(activeSources, basalSources []string) ([]metrics.EnergyDay, error) {
	key := memo.NewKey("energy", e.fingerprint(metrics.DerivedTotalEnergy),
		strings.Join(activeSources, "\x00"), strings.Join(basalSources, "\x00"))
	return memo.Do(e.cache, key, func() ([]metrics.EnergyDay, error) {
		active, err := e.ds.Get(metrics.ActiveEnergyBurned)
		if err != nil {
			return nil, err
		}
		basal, err := e.ds.Get(metrics.BasalEnergyBurned)
		if err != nil {
			return nil, err
		}
		return metrics.TotalEnergy(
			metrics.FilterSources(active, activeSources...),
			metrics.FilterSources(basal, basalSources...),
		)
	})
}

// EnergyByDOW averages individual active energy records per weekday.
func (e *Engine) EnergyByDOW() (*metrics.AggregatedSeries, error) {
	return e.Aggregate(AggregateRequest{
		Dataset: metrics.ActiveEnergyBurned,
		GroupBy: metrics.GroupDayOfWeek,
		Reduce:  metrics.Mean,
	})
}

// Sleep derives the weekly pattern and stage distribution. With no sources
// every device is included.
func (e *Engine) Sleep(sources ...string) (*metrics.SleepSummary, error) {
	key := memo.NewKey("sleep", e.fingerprint(metrics.SleepAnalysis), strings.Join(sources, "\x00"))
	return memo.Do(e.cache, key, func() (*metrics.SleepSummary, error) {
		s, err := e.ds.Get(metrics.SleepAnalysis)
		if err != nil {
			return nil, err
		}
		return metrics.Sleep(metrics.FilterSources(s, sources...))
	})
}

// CorrelateRequest parameterizes Correlate. Unless AllSources is set, each
// dataset is first restricted to its canonical sources when configured.
type CorrelateRequest struct {
	Datasets   []string
	AllSources bool
	Window     Window
}

// Correlate aligns datasets on date and, for two of them, computes Pearson's r.
func (e *Engine) Correlate(req CorrelateRequest) (*metrics.Alignment, error) {
	if len(req.Datasets) < 2 {
		return nil, fmt.Errorf("%w: correlate needs at least two datasets", metrics.ErrInvalidArgument)
	}
	parts := []string{"correlate", strconv.FormatBool(req.AllSources), req.Window.key()}
	for _, d := range req.Datasets {
		parts = append(parts, d, e.fingerprint(d))
	}
	return memo.Do(e.cache, memo.NewKey(parts...), func() (*metrics.Alignment, error) {
		keep := sourcesFor(e.canonical)
		if req.AllSources {
			keep = allSources
		}
		inputs := make([]metrics.NamedSeries, 0, len(req.Datasets))
		for _, d := range req.Datasets {
			s, err := e.series(d, keep)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, metrics.NamedSeries{Name: d, Series: req.Window.apply(s)})
		}
		return metrics.Align(inputs...)
	})
}

// DatasetInfo describes one dataset of the bundle.
type DatasetInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Unit     string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Reduce   string   `json:"reduce,omitempty" yaml:"reduce,omitempty"`
	Rows     int      `json:"rows" yaml:"rows"`
	Unparsed int      `json:"unparsed" yaml:"unparsed"`
	First    string   `json:"first,omitempty" yaml:"first,omitempty"`
	Last     string   `json:"last,omitempty" yaml:"last,omitempty"`
	Sources  []string `json:"sources" yaml:"sources"`
}

// Inventory lists every dataset in name order.
func (e *Engine) Inventory() []DatasetInfo {
	out := make([]DatasetInfo, 0, len(e.ds))
	for _, name := range e.ds.Names() {
		s := e.ds[name]
		info := DatasetInfo{Name: name, Rows: s.Len(), Unparsed: s.Unparsed(), Sources: metrics.Sources(s)}
		if m, ok := metrics.Lookup(name); ok {
			info.Label, info.Unit, info.Reduce = m.Label, m.Unit, m.Reduce.String()
		}
		if first, last, ok := metrics.DateRange(s); ok {
			info.First, info.Last = first.Format(metrics.DateLayout), last.Format(metrics.DateLayout)
		}
		out = append(out, info)
	}
	return out
}
