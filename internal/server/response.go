package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/logger"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// JSONContentType is set on every API response.
const JSONContentType = "application/json"

type errorBody struct {
	Error string `json:"error"`
}

// Result wraps every successful payload. Unavailable views still answer 200
// so dashboards can render the reason in place of the chart.
type Result struct {
	Data        any                    `json:"data,omitempty"`
	Unavailable *dashboard.Unavailable `json:"unavailable,omitempty"`
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		renderFatal(w, fmt.Errorf("failed to marshal data: %w", err))
		return
	}
	w.Header().Set("Content-Type", JSONContentType)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func renderFatal(w http.ResponseWriter, err error) {
	logger.Error().Err(err).Msg("request failed")
	renderError(w, err, http.StatusInternalServerError)
}

func renderError(w http.ResponseWriter, err error, status int) {
	b, _ := json.Marshal(errorBody{Error: err.Error()})
	w.Header().Set("Content-Type", JSONContentType)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func renderSuccess(w http.ResponseWriter, data any) {
	renderJSON(w, http.StatusOK, Result{Data: data})
}

// renderResult maps a view computation onto a response.
func renderResult(w http.ResponseWriter, metric string, data any, err error) {
	if err == nil {
		renderSuccess(w, data)
		return
	}
	if u := dashboard.AsUnavailable(metric, err); u != nil {
		renderJSON(w, http.StatusOK, Result{Unavailable: u})
		return
	}
	var gk *metrics.UnsupportedGroupKeyError
	if errors.Is(err, metrics.ErrInvalidArgument) || errors.As(err, &gk) {
		renderError(w, err, http.StatusBadRequest)
		return
	}
	renderFatal(w, err)
}
