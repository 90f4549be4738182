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
)

// OperationsHandler triggers pipeline runs and serves their reports.
type OperationsHandler struct {
	service      DataServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewOperationsHandler creates an operations handler.
func NewOperationsHandler(service DataServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *OperationsHandler {
	return &OperationsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "operations_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the operations routes.
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/run", h.Run)
	r.Post("/fetch", h.Fetch)
	r.Get("/status", h.Status)
	r.Get("/reports/latest", h.LatestReport)
	r.Get("/reports/{runID}", h.GetReport)

	return r
}

// Run handles POST /api/operations/run. The run executes synchronously; the
// response carries the full run report. A run already in flight yields 409.
func (h *OperationsHandler) Run(w http.ResponseWriter, r *http.Request) {
	reqID := custommw.GetReqID(r.Context())
	h.logger.InfoContext(r.Context(), "pipeline run requested",
		slog.String("request_id", reqID))

	report, err := h.service.RunPipeline(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrRunActive) {
			h.errorHandler.HandleError(w, r, apierrors.ErrRunActive)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   report,
	})
}

// Fetch handles POST /api/operations/fetch, pulling fresh raw observations
// from the upstream source.
func (h *OperationsHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	reqID := custommw.GetReqID(r.Context())
	h.logger.InfoContext(r.Context(), "source fetch requested",
		slog.String("request_id", reqID))

	if err := h.service.FetchMacros(r.Context()); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"status": "success"})
}

// Status handles GET /api/operations/status.
func (h *OperationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":     "success",
		"run_active": h.service.Running(),
	})
}

// LatestReport handles GET /api/operations/reports/latest.
func (h *OperationsHandler) LatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.LastReport()
	if err != nil {
		if errors.Is(err, services.ErrNoRunYet) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusNotFound,
				"NO_RUN_YET",
				"No pipeline run has completed yet",
			))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   report,
	})
}

// GetReport handles GET /api/operations/reports/{runID}.
func (h *OperationsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	report, err := h.service.GetReport(runID)
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusNotFound,
				"REPORT_NOT_FOUND",
				fmt.Sprintf("Run '%s' not found", runID),
				map[string]interface{}{"run_id": runID},
			))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   report,
	})
}
