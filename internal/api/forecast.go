package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/ingest"
	"github.com/patrickwarner/openslot/internal/models"
)

// ForecastWriter is implemented by forecast sources that accept uploads.
type ForecastWriter interface {
	Write(ctx context.Context, forecast models.Forecast) error
}

// ForecastImportResponse is the body returned by POST /forecast.
type ForecastImportResponse struct {
	Screens int `json:"screens"`
	Hours   int `json:"hours"`
}

// ImportForecastHandler stores a forecast uploaded as
// {"<screen id>": {"<unix hour>": ots}}.
func (s *Server) ImportForecastHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "forecast_import"
	method := r.Method

	writer, ok := s.Forecasts.(ForecastWriter)
	if !ok {
		s.observe(endpoint, method, s.fail(w, r, fmt.Errorf("forecast import: %w", errNoStore)), start)
		return
	}
	forecast, err := ingest.ReadForecast(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	resp := ForecastImportResponse{Screens: len(forecast)}
	for _, sf := range forecast {
		for _, ots := range sf {
			if ots < 0 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "forecast OTS must not be negative"})
				s.observe(endpoint, method, http.StatusBadRequest, start)
				return
			}
			resp.Hours++
		}
	}
	if err := writer.Write(r.Context(), forecast); err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}
	s.logger(r).Info("forecast imported", zap.Int("screens", resp.Screens), zap.Int("hours", resp.Hours))
	writeJSON(w, http.StatusOK, resp)
	s.observe(endpoint, method, http.StatusOK, start)
}

// ExportForecastHandler returns the forecast of the screens named by
// repeated "screen" parameters between "from" and "to" (RFC 3339).
func (s *Server) ExportForecastHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "forecast_export"
	method := r.Method

	if s.Forecasts == nil {
		s.observe(endpoint, method, s.fail(w, r, fmt.Errorf("forecast export: %w", errNoStore)), start)
		return
	}
	q := r.URL.Query()
	bad := func(msg string) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		s.observe(endpoint, method, http.StatusBadRequest, start)
	}
	var ids []int64
	for _, raw := range q["screen"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			bad(fmt.Sprintf("invalid screen %q", raw))
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		bad("at least one screen is required")
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		bad("from must be an RFC 3339 time")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil || !to.After(from) {
		bad("to must be an RFC 3339 time after from")
		return
	}

	forecast, err := s.Forecasts.Load(r.Context(), ids, from, to)
	if err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := ingest.WriteForecast(w, forecast); err != nil {
		s.logger(r).Warn("write forecast", zap.Error(err))
	}
	s.observe(endpoint, method, http.StatusOK, start)
}
