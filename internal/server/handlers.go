package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"datasets": len(s.engine.Datasets()),
		"cache":    s.engine.CacheStats(),
	})
}

func (s *Server) datasets(w http.ResponseWriter, _ *http.Request) {
	renderSuccess(w, s.engine.Inventory())
}

func (s *Server) overview(w http.ResponseWriter, _ *http.Request) {
	o, err := s.engine.Overview()
	renderResult(w, "Overview", o, err)
}

func (s *Server) panels(w http.ResponseWriter, _ *http.Request) {
	p, err := s.engine.Panels()
	renderResult(w, "Panels", p, err)
}

func (s *Server) panel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	panels, err := s.engine.Panels()
	if err != nil {
		renderFatal(w, err)
		return
	}
	for _, p := range panels {
		if p.ID == id {
			renderSuccess(w, p)
			return
		}
	}
	renderError(w, fmt.Errorf("unknown panel %q", id), http.StatusNotFound)
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", metrics.ErrInvalidArgument, name, v)
	}
	return b, nil
}

// listParam accepts both repeated and comma separated values.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func windowParam(r *http.Request) (dashboard.Window, error) {
	q := r.URL.Query()
	return dashboard.ParseWindow(q.Get("since"), q.Get("from"), q.Get("to"))
}

func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) {
	dataset := mux.Vars(r)["dataset"]
	q := r.URL.Query()
	by := q.Get("by")
	if by == "" {
		by = "date"
	}
	key, err := metrics.ParseGroupKey(by)
	if err != nil {
		renderError(w, err, http.StatusBadRequest)
		return
	}
	bySource, err := boolParam(r, "by_source")
	if err != nil {
		renderError(w, err, http.StatusBadRequest)
		return
	}
	win, err := windowParam(r)
	if err != nil {
		renderError(w, err, http.StatusBadRequest)
		return
	}
	a, err := s.engine.Aggregate(dashboard.AggregateRequest{
		Dataset:  dataset,
		GroupBy:  key,
		BySource: bySource,
		Sources:  listParam(r, "source"),
		Window:   win,
	})
	renderResult(w, dataset, a, err)
}

func (s *Server) sources(w http.ResponseWriter, r *http.Request) {
	dataset := mux.Vars(r)["dataset"]
	src, err := s.engine.Sources(dataset)
	renderResult(w, dataset, src, err)
}

func (s *Server) bmi(w http.ResponseWriter, _ *http.Request) {
	b, err := s.engine.BMI()
	renderResult(w, "BMI", b, err)
}

func (s *Server) energy(w http.ResponseWriter, r *http.Request) {
	if by := r.URL.Query().Get("by"); by != "" {
		key, err := metrics.ParseGroupKey(by)
		if err != nil {
			renderError(w, err, http.StatusBadRequest)
			return
		}
		if key != metrics.GroupDayOfWeek {
			renderError(w, fmt.Errorf("%w: energy supports by=dow only", metrics.ErrInvalidArgument), http.StatusBadRequest)
			return
		}
		a, err := s.engine.EnergyByDOW()
		renderResult(w, "Active energy by weekday", a, err)
		return
	}
	days, err := s.engine.Energy()
	renderResult(w, "Daily energy", days, err)
}

func (s *Server) sleep(w http.ResponseWriter, r *http.Request) {
	sl, err := s.engine.Sleep(listParam(r, "source")...)
	renderResult(w, "Sleep", sl, err)
}

func (s *Server) correlate(w http.ResponseWriter, r *http.Request) {
	all, err := boolParam(r, "all_sources")
	if err != nil {
		renderError(w, err, http.StatusBadRequest)
		return
	}
	win, err := windowParam(r)
	if err != nil {
		renderError(w, err, http.StatusBadRequest)
		return
	}
	ds := listParam(r, "datasets")
	a, err := s.engine.Correlate(dashboard.CorrelateRequest{Datasets: ds, AllSources: all, Window: win})
	renderResult(w, strings.Join(ds, " ~ "), a, err)
}
