// Package api exposes the asset registry over HTTP with chi.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

// multipartMemory is kept in memory before spilling file parts to disk.
const multipartMemory = 8 << 20

// AssetHandler handles HTTP requests for assets
type AssetHandler struct {
	service        assetregistry.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewAssetHandler creates a new asset handler. maxUploadBytes bounds the
// multipart body; zero uses assetregistry.DefaultMaxUploadBytes.
func NewAssetHandler(service assetregistry.Service, logger *slog.Logger, maxUploadBytes int64) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = assetregistry.DefaultMaxUploadBytes
	}
	return &AssetHandler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Routes returns the asset routes. auth wraps every mutating route.
func (h *AssetHandler) Routes(auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAll)
	r.Get("/recent", h.ListRecent)
	r.Get("/search", h.Search)
	r.Get("/{slug}", h.GetBySlug)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/register", h.Register)
		r.Post("/github", h.UploadToGitHub)
		r.Delete("/github", h.DeleteFromGitHub)

		r.Get("/id/{id}", h.GetByID)
		r.Patch("/id/{id}", h.Update)
		r.Delete("/id/{id}", h.SoftDelete)
		r.Post("/id/{id}/restore", h.Restore)
	})

	return r
}

// ItemsResponse wraps an unpaginated listing.
type ItemsResponse struct {
	Items []*assetregistry.AssetView `json:"items"`
	Total int                        `json:"total"`
}

// Register registers an asset that already lives on some disk
func (h *AssetHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req assetregistry.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "register", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, view)
}

// UploadToGitHub pushes a multipart file to GitHub and registers it
func (h *AssetHandler) UploadToGitHub(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, "Validation failed",
				map[string]string{"file": fmt.Sprintf("exceeds %d bytes", h.maxUploadBytes)})
			return
		}
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "Invalid multipart form", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, "Validation failed",
			map[string]string{"file": "is required"})
		return
	}
	defer file.Close()

	verify, _ := strconv.ParseBool(r.FormValue("verify_hash"))
	req := assetregistry.UploadRequest{
		File:           file,
		SourceFilename: header.Filename,
		Label:          r.FormValue("label"),
		Filename:       r.FormValue("filename"),
		Slug:           r.FormValue("slug"),
		RepoPath:       r.FormValue("repo_path"),
		Owner:          r.FormValue("owner"),
		Repo:           r.FormValue("repo"),
		Branch:         r.FormValue("branch"),
		Message:        r.FormValue("message"),
		Mime:           r.FormValue("mime"),
		Disposition:    assetregistry.Disposition(r.FormValue("disposition")),
		Visibility:     r.FormValue("visibility"),
		VerifyHash:     verify,
	}

	view, err := h.service.UploadToGitHub(r.Context(), req)
	if err != nil {
		if errors.Is(err, assetregistry.ErrUpstream) || errors.Is(err, assetregistry.ErrRepositoryNotFound) {
			h.logger.Error("GitHub upload failed", "repo_path", req.RepoPath, "err", err)
			writeError(w, r, http.StatusInternalServerError, CodeUpstream, "Upload to GitHub failed", nil)
			return
		}
		writeServiceError(w, r, h.logger, "upload", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, view)
}

// DeleteFromGitHub removes a file from the repository
func (h *AssetHandler) DeleteFromGitHub(w http.ResponseWriter, r *http.Request) {
	var req assetregistry.DeleteRemoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.DeleteFromGitHub(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "delete remote", err)
		return
	}
	render.JSON(w, r, res)
}

// GetBySlug resolves an active asset
func (h *AssetHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get by slug", err)
		return
	}
	render.JSON(w, r, view)
}

// GetByID fetches an asset including soft-deleted ones
func (h *AssetHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get by id", err)
		return
	}
	render.JSON(w, r, view)
}

// Update applies an allow-listed patch. Unknown fields are ignored.
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch assetregistry.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}

	view, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, "update", err)
		return
	}
	render.JSON(w, r, view)
}

func (h *AssetHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.SoftDelete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "delete", err)
		return
	}
	render.JSON(w, r, map[string]bool{"deleted": deleted})
}

func (h *AssetHandler) Restore(w http.ResponseWriter, r *http.Request) {
	restored, err := h.service.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "restore", err)
		return
	}
	render.JSON(w, r, map[string]bool{"restored": restored})
}

// ListRecent returns the newest active assets
func (h *AssetHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := assetregistry.NewValidationError()
	limit := intParam(v, q.Get("limit"), "limit", assetregistry.DefaultListLimit)
	if err := v.OrNil(); err != nil {
		writeServiceError(w, r, h.logger, "recent", err)
		return
	}

	items, err := h.service.ListRecent(r.Context(), assetregistry.RecentQuery{
		Label:      q.Get("label"),
		Disk:       assetregistry.Disk(q.Get("disk")),
		Visibility: q.Get("visibility"),
		Limit:      limit,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "recent", err)
		return
	}
	render.JSON(w, r, ItemsResponse{Items: items, Total: len(items)})
}

// Search returns one page of a filtered, sorted listing
func (h *AssetHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := assetregistry.NewValidationError()
	limit := intParam(v, q.Get("limit"), "limit", assetregistry.DefaultListLimit)
	offset := intParam(v, q.Get("offset"), "offset", 0)
	includeDeleted := false
	if raw := q.Get("include_deleted"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			v.Add("include_deleted", "must be a boolean")
		}
		includeDeleted = parsed
	}
	if err := v.OrNil(); err != nil {
		writeServiceError(w, r, h.logger, "search", err)
		return
	}

	res, err := h.service.Search(r.Context(), assetregistry.ListQuery{
		Filter: assetregistry.Filter{
			Query:          q.Get("q"),
			Disk:           assetregistry.Disk(q.Get("disk")),
			Visibility:     q.Get("visibility"),
			IncludeDeleted: includeDeleted,
		},
		SortBy:  q.Get("sort"),
		SortDir: assetregistry.SortDirection(strings.ToLower(q.Get("dir"))),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "search", err)
		return
	}
	render.JSON(w, r, res)
}

// ListAll returns every active asset matching the filters
func (h *AssetHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.ListAll(r.Context(), assetregistry.Filter{
		Query:      q.Get("label"),
		Disk:       assetregistry.Disk(q.Get("disk")),
		Visibility: q.Get("visibility"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list", err)
		return
	}
	render.JSON(w, r, ItemsResponse{Items: items, Total: len(items)})
}

func intParam(v *assetregistry.ValidationError, raw, field string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.Add(field, "must be an integer")
		return def
	}
	return n
}

// decodeJSON reads the request body into dst. A field of the wrong JSON type
// is a validation failure on that field; anything else unparseable is 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeError(w, r, http.StatusUnprocessableEntity, CodeValidation, "Validation failed",
			map[string]string{typeErr.Field: "has the wrong type"})
		return false
	}
	writeError(w, r, http.StatusBadRequest, CodeBadRequest, "Invalid request body", nil)
	return false
}
