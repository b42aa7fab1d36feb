package api

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

// BlobHandler streams stored blobs
type BlobHandler struct {
	service storefront.Service
	logger  *slog.Logger
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(service storefront.Service, logger *slog.Logger) *BlobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobHandler{service: service, logger: logger}
}

// Routes mounts the blob routes behind their access rules
func (h *BlobHandler) Routes(admin, download Middleware) chi.Router {
	r := chi.NewRouter()
	r.With(admin).Get("/{id}", h.GetBlob)
	r.With(download).Get("/{id}/download", h.Download)
	r.Get("/{id}/preview", h.Preview)
	return r
}

// GetBlob returns the blob manifest
func (h *BlobHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	blob, err := h.service.StatBlob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, blob)
}

// Download streams the blob as an attachment
func (h *BlobHandler) Download(w http.ResponseWriter, r *http.Request) {
	blob, body, err := h.service.OpenBlob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	defer body.Close()
	h.stream(w, r, blob, body, "attachment")
}

// Preview streams a cover or gallery image inline. Primary files are only
// reachable through Download.
func (h *BlobHandler) Preview(w http.ResponseWriter, r *http.Request) {
	blob, body, err := h.service.OpenPreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	defer body.Close()
	h.stream(w, r, blob, body, "inline")
}

func (h *BlobHandler) stream(w http.ResponseWriter, r *http.Request, blob *storefront.Blob, body io.Reader, disposition string) {

	filename := blob.Name
	if filename == "" {
		filename = blob.ID.String()
	}
	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	// Headers are gone by now; a failure can only be logged and the
	// connection cut short.
	if n, err := io.Copy(w, body); err != nil {
		h.logger.ErrorContext(r.Context(), "blob stream aborted",
			"blob_id", blob.ID, "written", n, "size", blob.Size, "error", err)
	}
}
