package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/offline"
	"github.com/marcus/till/internal/printer"
	"github.com/marcus/till/internal/remote"
)

// Error code constants for structured API error responses.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal"
	ErrCodeSyncInProgress = "sync_in_progress"
	ErrCodeStorage        = "storage_error"
	ErrCodeRemote         = "remote_error"
	ErrCodePrinter        = "printer_error"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// writeError aborts the request with a JSON error body.
func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: APIError{Code: code, Message: message},
	})
}

// writeFailure maps err onto a status and code.
func writeFailure(c *gin.Context, err error) {
	var (
		storageErr *offline.StorageError
		writeErr   *printer.WriteError
		remoteErr  *remote.APIError
	)
	switch {
	case errors.Is(err, offline.ErrSyncInProgress):
		writeError(c, http.StatusConflict, ErrCodeSyncInProgress, err.Error())
	case errors.Is(err, offline.ErrUnknownKind):
		writeError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.As(err, &storageErr):
		logFor(c).Error("local queue failure", "key", storageErr.Key, "err", storageErr.Err)
		writeError(c, http.StatusInternalServerError, ErrCodeStorage, err.Error())
	case errors.As(err, &writeErr),
		errors.Is(err, checkout.ErrNoPrinter),
		errors.Is(err, printer.ErrNotConnected),
		errors.Is(err, printer.ErrNoDevice),
		errors.Is(err, printer.ErrHandshake),
		errors.Is(err, printer.ErrNoWritableChannel):
		writeError(c, http.StatusServiceUnavailable, ErrCodePrinter, err.Error())
	case errors.As(err, &remoteErr):
		writeError(c, http.StatusBadGateway, ErrCodeRemote, err.Error())
	default:
		logFor(c).Error("request failed", "err", err)
		writeError(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
