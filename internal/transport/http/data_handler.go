package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "macropipe/internal/errors"
	custommw "macropipe/internal/middleware"
	"macropipe/internal/services"
	"macropipe/pkg/contracts/domain"
)

// DataHandler serves cleaned series and the merged table.
type DataHandler struct {
	service      DataServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a data handler.
func NewDataHandler(service DataServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "data_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the data routes.
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/series", h.ListSeries)
	r.Get("/series/{name}", h.GetSeries)
	r.Get("/merged", h.GetMerged)

	return r
}

// seriesPayload is the JSON shape of a series. Missing observations are
// encoded as null; encoding/json cannot represent NaN.
type seriesPayload struct {
	Name    string          `json:"name"`
	Dates   []string        `json:"dates"`
	Columns []columnPayload `json:"columns"`
}

type columnPayload struct {
	Name   string     `json:"name"`
	Kind   string     `json:"kind"`
	Values []*float64 `json:"values"`
}

func toSeriesPayload(s *domain.Series) seriesPayload {
	dates := make([]string, len(s.Dates))
	for i, d := range s.Dates {
		dates[i] = d.Format("2006-01-02")
	}
	columns := make([]columnPayload, len(s.Columns))
	for c, col := range s.Columns {
		values := make([]*float64, len(col.Values))
		for i, v := range col.Values {
			if !domain.IsMissing(v) {
				value := v
				values[i] = &value
			}
		}
		columns[c] = columnPayload{Name: col.Name, Kind: string(col.Kind), Values: values}
	}
	return seriesPayload{Name: s.Name, Dates: dates, Columns: columns}
}

// ListSeries handles GET /api/data/series.
func (h *DataHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.ListSeries(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   names,
		"count":  len(names),
	})
}

// GetSeries handles GET /api/data/series/{name}.
func (h *DataHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reqID := custommw.GetReqID(r.Context())

	series, err := h.service.GetSeries(r.Context(), name)
	if err != nil {
		h.logger.WarnContext(r.Context(), "series lookup failed",
			slog.String("request_id", reqID),
			slog.String("series", name),
			slog.String("error", err.Error()))

		if errors.Is(err, services.ErrSeriesNotFound) {
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusNotFound,
				"SERIES_NOT_FOUND",
				fmt.Sprintf("Series '%s' not found", name),
				map[string]interface{}{"series": name},
			))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   toSeriesPayload(series),
	})
}

// GetMerged handles GET /api/data/merged.
func (h *DataHandler) GetMerged(w http.ResponseWriter, r *http.Request) {
	merged, err := h.service.GetMergedTable(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoMergedTable) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_MERGED_TABLE",
				"No merged table available; run the pipeline first",
			))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	firstObserved := make(map[string]string, len(merged.FirstObserved))
	for column, date := range merged.FirstObserved {
		firstObserved[column] = date.Format("2006-01-02")
	}
	render.JSON(w, r, map[string]interface{}{
		"status":         "success",
		"data":           toSeriesPayload(&merged.Series),
		"first_observed": firstObserved,
		"rows":           merged.Len(),
	})
}
