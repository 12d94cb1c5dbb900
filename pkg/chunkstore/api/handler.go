package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/listing"
)

// ManifestResponse is the response body describing a chunked item
type ManifestResponse struct {
	Container       string          `json:"container"`
	ManifestID      string          `json:"manifest_id"`
	SourceContentID string          `json:"source_content_id"`
	Mimetype        string          `json:"mimetype"`
	ByteSize        int64           `json:"byte_size"`
	MD5             string          `json:"md5"`
	Chunks          []ChunkResponse `json:"chunks"`
}

// ChunkResponse describes one chunk of a manifest
type ChunkResponse struct {
	ChunkID  string `json:"chunk_id"`
	Index    int    `json:"index"`
	ByteSize int64  `json:"byte_size"`
	MD5      string `json:"md5"`
}

// VerifyResponse is the response body of a verification run
type VerifyResponse struct {
	ManifestID string              `json:"manifest_id"`
	Success    bool                `json:"success"`
	Results    []chunkstore.Result `json:"results"`
}

// ChunkHandler serves chunked content of a chunkstore.Service over HTTP
type ChunkHandler struct {
	service  chunkstore.Service
	listings *listing.Stitcher
	logger   *slog.Logger
}

// NewChunkHandler creates a new chunk handler. listings may be nil, in which
// case the listing route reports 404.
func NewChunkHandler(service chunkstore.Service, listings *listing.Stitcher, logger *slog.Logger) *ChunkHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkHandler{service: service, listings: listings, logger: logger}
}

// Routes returns the routes for chunked content. Content ids may contain
// slashes, so they are matched with a trailing wildcard.
func (h *ChunkHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{space}/manifests", h.ListManifests)
	r.Get("/{space}/listing", h.GetListing)

	r.Put("/{space}/content/*", h.PutContent)
	r.Get("/{space}/content/*", h.GetContent)
	r.Delete("/{space}/content/*", h.DeleteContent)

	r.Get("/{space}/manifest/*", h.GetManifest)
	r.Get("/{space}/verify/*", h.VerifyContent)
	r.Post("/{space}/copy/*", h.CopyContent)

	return r
}

// manifestIDParam accepts either a source content id or a manifest id
func manifestIDParam(r *http.Request) string {
	id := chi.URLParam(r, "*")
	if id == "" || chunkstore.IsManifestID(id) {
		return id
	}
	return chunkstore.ManifestID(id)
}

// PutContent chunks the request body under the content id of the path
func (h *ChunkHandler) PutContent(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	sourceID := chi.URLParam(r, "*")
	if sourceID == "" {
		badRequest(w, r, "content id is required")
		return
	}

	var chunkSize int64
	if v := r.URL.Query().Get("chunk_size"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil || size <= 0 {
			badRequest(w, r, "chunk_size must be a positive integer")
			return
		}
		chunkSize = size
	}

	mimetype := r.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	manifest, err := h.service.Chunk(r.Context(), chunkstore.ChunkRequest{
		Container:       space,
		SourceContentID: sourceID,
		Mimetype:        mimetype,
		Size:            r.ContentLength,
		Body:            r.Body,
		MaxChunkSize:    chunkSize,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to chunk content", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toManifestResponse(space, manifest))
}

// GetContent streams the stitched content
func (h *ChunkHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	manifestID := manifestIDParam(r)

	content, err := h.service.Stitch(r.Context(), space, manifestID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to stitch content", err)
		return
	}
	defer content.Body.Close()

	if mimetype := content.Properties.Mimetype(); mimetype != "" {
		w.Header().Set("Content-Type", mimetype)
	}
	if size, err := content.Properties.Size(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if checksum := content.Properties.Checksum(); checksum != "" {
		w.Header().Set("ETag", strconv.Quote(checksum))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content.Body); err != nil {
		// headers are gone, the client sees a truncated body
		h.logger.Error("Stitched download aborted", "space", space, "manifest_id", manifestID, "error", err)
	}
}

// DeleteContent removes a chunked item
func (h *ChunkHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	if err := h.service.Delete(r.Context(), space, manifestIDParam(r)); err != nil {
		writeError(w, r, h.logger, "Failed to delete content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetManifest returns the decoded manifest
func (h *ChunkHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	manifest, err := h.service.LoadManifest(r.Context(), space, manifestIDParam(r))
	if err != nil {
		writeError(w, r, h.logger, "Failed to load manifest", err)
		return
	}
	render.JSON(w, r, toManifestResponse(space, manifest))
}

// VerifyContent checks every chunk against the manifest
func (h *ChunkHandler) VerifyContent(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	manifestID := manifestIDParam(r)

	results, err := h.service.Verify(r.Context(), space, manifestID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to verify content", err)
		return
	}
	render.JSON(w, r, VerifyResponse{
		ManifestID: manifestID,
		Success:    results.IsSuccess(),
		Results:    results.Results,
	})
}

// CopyContent copies a chunked item into the space named by the "to" query parameter
func (h *ChunkHandler) CopyContent(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	dst := r.URL.Query().Get("to")
	if dst == "" {
		badRequest(w, r, "destination space is required")
		return
	}
	if err := h.service.Copy(r.Context(), space, manifestIDParam(r), dst); err != nil {
		writeError(w, r, h.logger, "Failed to copy content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListManifests returns the manifest ids of a space
func (h *ChunkHandler) ListManifests(w http.ResponseWriter, r *http.Request) {
	space := chi.URLParam(r, "space")
	ids, err := h.service.ListManifests(r.Context(), space)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list manifests", err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"space":     space,
		"manifests": ids,
	})
}

// GetListing streams the space listing with chunked items collapsed
func (h *ChunkHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	if h.listings == nil {
		http.NotFound(w, r)
		return
	}
	space := chi.URLParam(r, "space")

	format := listing.FormatTSV
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := listing.ParseFormat(v)
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		format = f
	}

	out, err := h.listings.Generate(r.Context(), space, format)
	if err != nil {
		writeError(w, r, h.logger, "Failed to generate listing", err)
		return
	}
	defer out.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, out); err != nil {
		h.logger.Error("Listing download aborted", "space", space, "error", err)
	}
}

func toManifestResponse(space string, m *chunkstore.Manifest) ManifestResponse {
	chunks := make([]ChunkResponse, 0, len(m.Entries))
	for _, e := range m.Entries {
		chunks = append(chunks, ChunkResponse{
			ChunkID:  e.ChunkID,
			Index:    e.Index,
			ByteSize: e.ByteSize,
			MD5:      e.ChunkMD5,
		})
	}
	return ManifestResponse{
		Container:       space,
		ManifestID:      m.ManifestID(),
		SourceContentID: m.Header.SourceContentID,
		Mimetype:        m.Header.SourceMimetype,
		ByteSize:        m.Header.SourceByteSize,
		MD5:             m.Header.SourceMD5,
		Chunks:          chunks,
	}
}
