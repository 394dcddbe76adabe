package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

// Error codes carried in the envelope.
const (
	CodeValidation     = "validation_error"
	CodePolicy         = "policy_rejected"
	CodeInvalidRemote  = "invalid_remote"
	CodeSlugConflict   = "slug_conflict"
	CodeNotFound       = "not_found"
	CodeEmptyRepo      = "empty_repository"
	CodeUpstream       = "upstream_error"
	CodeUnauthorized   = "unauthorized"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal_error"
	emptyRepoGuidance  = "The repository has no commits yet. Push an initial commit (for example a README) and retry."
	internalErrMessage = "Internal server error"
)

// ErrorBody is the inner object of the error envelope.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, fields map[string]string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Fields: fields}})
}

// errorMapping decides the status, code and public message for err.
func errorMapping(err error) (int, ErrorBody) {
	var validation *assetregistry.ValidationError
	var upstream *assetregistry.UpstreamError

	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, ErrorBody{Code: CodeValidation, Message: "Validation failed", Fields: validation.Fields}
	case errors.Is(err, assetregistry.ErrValidation):
		return http.StatusUnprocessableEntity, ErrorBody{Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, assetregistry.ErrInvalidRemote):
		return http.StatusBadRequest, ErrorBody{Code: CodeInvalidRemote, Message: err.Error()}
	case errors.Is(err, assetregistry.ErrPolicyRejected):
		return http.StatusBadRequest, ErrorBody{Code: CodePolicy, Message: err.Error()}
	case errors.Is(err, assetregistry.ErrSlugConflict):
		return http.StatusConflict, ErrorBody{Code: CodeSlugConflict, Message: "Slug already in use"}
	case errors.Is(err, assetregistry.ErrEmptyRepository):
		return http.StatusConflict, ErrorBody{Code: CodeEmptyRepo, Message: emptyRepoGuidance}
	case errors.Is(err, assetregistry.ErrAssetNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "Asset not found"}
	case errors.Is(err, assetregistry.ErrFileNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "File not found in repository"}
	case errors.Is(err, assetregistry.ErrRepositoryNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "Repository not found"}
	case errors.As(err, &upstream) && upstream.StatusCode > 0:
		return http.StatusBadGateway, ErrorBody{Code: CodeUpstream, Message: "Upstream request failed"}
	}
	return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: internalErrMessage}
}

// writeServiceError maps a service error onto the envelope. Server-side
// failures are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status, body := errorMapping(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "op", op, "status", status, "err", err)
	}
	writeError(w, r, status, body.Code, body.Message, body.Fields)
}
