package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler provides centralized error handling for HTTP handlers
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to a structured response and writes it
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	apiErr := h.ToAPIError(err)

	logFn := h.logger.WarnContext
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logFn = h.logger.ErrorContext
	}
	logFn(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", apiErr.StatusCode),
		slog.String("error_code", apiErr.ErrorCode))

	render.Render(w, r, NewErrorResponse(apiErr))
}

// ToAPIError maps errors onto the API error shape. AppError carries its own
// taxonomy type; context errors become timeouts; everything else is an
// internal server error.
func (h *ErrorHandler) ToAPIError(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return New(http.StatusGatewayTimeout, "TIMEOUT", "The request took too long to process and was cancelled")
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return FromAppError(appErr)
	}

	return ErrInternalServer
}

// Recovery returns a middleware that converts panics into structured 500
// responses instead of dropping the connection.
func (h *ErrorHandler) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				attrs := []any{
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				}
				if h.includeStack {
					attrs = append(attrs, slog.String("stack", string(debug.Stack())))
				}
				h.logger.ErrorContext(r.Context(), "panic recovered", attrs...)
				WriteError(w, ErrInternalServer)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
