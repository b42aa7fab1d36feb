package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/staging"
)

// ContentResponse wraps a record returned by a mutation
type ContentResponse struct {
	Message string                    `json:"message"`
	Content *storefront.ContentRecord `json:"content"`
}

// BlobDeletionResponse is the outcome of one blob removal
type BlobDeletionResponse struct {
	BlobID      string `json:"blob_id"`
	Slot        string `json:"slot"`
	Deleted     bool   `json:"deleted"`
	AlreadyGone bool   `json:"already_gone,omitempty"`
	Error       string `json:"error,omitempty"`
}

// DeleteResponse is the response body of a record deletion
type DeleteResponse struct {
	Message string                 `json:"message"`
	Blobs   []BlobDeletionResponse `json:"blobs"`
}

// ContentHandler handles HTTP requests for content records
type ContentHandler struct {
	service storefront.Service
	staging *staging.Area
	logger  *slog.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(service storefront.Service, area *staging.Area, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{service: service, staging: area, logger: logger}
}

// Routes mounts the content routes. read guards the catalog reads and
// write the mutations.
func (h *ContentHandler) Routes(read, write, upload Middleware) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(read)
		r.Get("/", h.ListContent)
		r.Get("/{id}", h.GetContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(write)
		r.With(upload).Post("/", h.CreateContent)
		r.With(upload).Put("/{id}", h.UpdateContent)
		r.Delete("/{id}", h.DeleteContent)
		r.Delete("/{id}/slot/{slot}", h.DeleteSlot)
		r.Delete("/{id}/gallery/{blobID}", h.DeleteGalleryImage)
	})

	return r
}

// CreateContent stores the uploaded files and creates the record
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	form, err := parseContentForm(r, h.staging)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	defer h.release(r, form)

	file, cover, gallery, err := form.uploads()
	if err != nil {
		WriteError(w, r, err)
		return
	}

	req := storefront.CreateContentRequest{
		File:          file,
		CoverImage:    cover,
		GalleryImages: gallery,
	}
	req.Name, _ = form.value("name")
	req.Category, _ = form.value("category")
	req.Region, _ = form.value("region")
	req.Genre, _ = form.value("genre")
	req.Description, _ = form.value("description")
	req.DownloadLink, _ = form.value("downloadLink", "download_link")

	record, err := h.service.CreateContent(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ContentResponse{Message: "Content created successfully", Content: record})
}

// ListContent returns every record
func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListContent(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, records)
}

// GetContent returns one record
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, record)
}

// UpdateContent changes fields and replaces the slots a file is sent for
func (h *ContentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	form, err := parseContentForm(r, h.staging)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	defer h.release(r, form)

	file, cover, gallery, err := form.uploads()
	if err != nil {
		WriteError(w, r, err)
		return
	}

	req := storefront.UpdateContentRequest{
		ID:            chi.URLParam(r, "id"),
		Category:      form.optional("category"),
		Region:        form.optional("region"),
		Genre:         form.optional("genre"),
		Description:   form.optional("description"),
		DownloadLink:  form.optional("downloadLink", "download_link"),
		File:          file,
		CoverImage:    cover,
		GalleryImages: gallery,
		AppendGallery: form.flag("appendGallery", "append_gallery"),
	}
	req.Name, _ = form.value("name")

	record, err := h.service.UpdateContent(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, ContentResponse{Message: "Content updated successfully", Content: record})
}

// DeleteContent removes the record and its blobs
func (h *ContentHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.DeleteContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	resp := DeleteResponse{Message: "Content deleted successfully", Blobs: []BlobDeletionResponse{}}
	for _, d := range report.Blobs {
		item := BlobDeletionResponse{
			BlobID:      d.BlobID.String(),
			Slot:        string(d.Slot),
			Deleted:     d.Err == nil,
			AlreadyGone: d.AlreadyGone,
		}
		if d.Err != nil {
			item.Error = storefront.PublicMessage(d.Err)
		}
		resp.Blobs = append(resp.Blobs, item)
	}
	if len(report.Failed()) > 0 {
		resp.Message = "Content deleted; some files could not be removed"
	}
	render.JSON(w, r, resp)
}

// DeleteSlot clears one file slot
func (h *ContentHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.DeleteSlot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slot"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, ContentResponse{Message: "File deleted successfully", Content: record})
}

// DeleteGalleryImage removes one gallery entry
func (h *ContentHandler) DeleteGalleryImage(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.DeleteGalleryImage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "blobID"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	render.JSON(w, r, ContentResponse{Message: "Gallery image deleted successfully", Content: record})
}

func (h *ContentHandler) release(r *http.Request, form *contentForm) {
	if err := form.close(); err != nil {
		h.logger.WarnContext(r.Context(), "failed to remove staged files", "error", err)
	}
}
