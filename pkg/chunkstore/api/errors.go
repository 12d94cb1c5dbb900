package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// ErrorResponse is the response body of a failed request
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chunkstore.ErrObjectNotFound), errors.Is(err, chunkstore.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chunkstore.ErrInvalidContentID):
		return http.StatusBadRequest, "invalid_content_id"
	case errors.Is(err, chunkstore.ErrNoChunksRetrievable):
		return http.StatusConflict, "no_chunks_retrievable"
	case errors.Is(err, chunkstore.ErrSizeMismatch):
		return http.StatusBadRequest, "size_mismatch"
	case errors.Is(err, chunkstore.ErrMaxChunksExceeded):
		return http.StatusRequestEntityTooLarge, "too_many_chunks"
	case errors.Is(err, chunkstore.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity, "checksum_mismatch"
	case errors.Is(err, chunkstore.ErrInvalidManifest):
		return http.StatusUnprocessableEntity, "invalid_manifest"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "path", r.URL.Path, "error", err)
	} else {
		logger.Warn(msg, "path", r.URL.Path, "status", status, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: err.Error(), RequestID: RequestID(r.Context())})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: "bad_request", Message: msg, RequestID: RequestID(r.Context())})
}
