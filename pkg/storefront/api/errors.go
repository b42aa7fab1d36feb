package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine readable kind and a safe message
type ErrorDetail struct {
	Code    storefront.Kind `json:"code"`
	Message string          `json:"message"`
}

// StatusFor maps an error kind onto an HTTP status
func StatusFor(kind storefront.Kind) int {
	switch kind {
	case storefront.KindValidation, storefront.KindInvalidSlot:
		return http.StatusBadRequest
	case storefront.KindNotFound:
		return http.StatusNotFound
	case storefront.KindUnauthorized:
		return http.StatusUnauthorized
	case storefront.KindForbidden:
		return http.StatusForbidden
	case storefront.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as an ErrorBody. Server-side failures are logged
// with their full detail, which never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := storefront.KindOf(err)
	status := StatusFor(kind)

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"kind", kind,
			"error", err)
	} else {
		slog.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: ErrorDetail{Code: kind, Message: storefront.PublicMessage(err)}})
}
