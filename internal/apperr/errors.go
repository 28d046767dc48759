// Package apperr defines the sentinel errors shared across the service
// boundary. Handlers map them to HTTP statuses with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotReady       = errors.New("no data loaded yet")
	ErrSyncRunning    = errors.New("sync already running")
	ErrInvalidRequest = errors.New("invalid request")
)
