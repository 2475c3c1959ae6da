package cmd

import (
	"errors"

	"github.com/marcus/till/internal/checkout"
	"github.com/marcus/till/internal/config"
	"github.com/marcus/till/internal/offline"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/printer"
	"github.com/marcus/till/internal/remote"
)

// fail prints err (as a JSON error body under --json) and returns it so the
// command exits non-zero.
func fail(err error) error {
	if !jsonOut {
		output.Error("%v", err)
		return err
	}

	var details map[string]interface{}
	var apiErr *remote.APIError
	var writeErr *printer.WriteError
	switch {
	case errors.As(err, &apiErr):
		details = map[string]interface{}{"status": apiErr.Status, "type": apiErr.Type}
	case errors.As(err, &writeErr):
		details = map[string]interface{}{"chunk": writeErr.Chunk, "chunks": writeErr.Total}
	}
	output.JSONErrorWithDetails(errorCode(err), err.Error(), details)
	return err
}

func errorCode(err error) string {
	var storageErr *offline.StorageError
	var apiErr *remote.APIError
	var writeErr *printer.WriteError
	switch {
	case errors.Is(err, offline.ErrSyncInProgress):
		return output.ErrCodeConflict
	case errors.Is(err, remote.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.As(err, &storageErr):
		return output.ErrCodeStorage
	case errors.As(err, &apiErr), errors.Is(err, remote.ErrUnauthorized),
		errors.Is(err, errRemoteNotConfigured), errors.Is(err, errRemoteUnreachable):
		return output.ErrCodeRemote
	case errors.As(err, &writeErr),
		errors.Is(err, checkout.ErrNoPrinter),
		errors.Is(err, printer.ErrNoDevice),
		errors.Is(err, printer.ErrHandshake),
		errors.Is(err, printer.ErrNoWritableChannel),
		errors.Is(err, printer.ErrNotConnected):
		return output.ErrCodePrinter
	case errors.Is(err, config.ErrUnknownKey), errors.Is(err, checkout.ErrEmptyCart):
		return output.ErrCodeInvalidInput
	}
	return output.ErrCodeInternal
}
