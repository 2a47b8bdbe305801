package services

import (
	"errors"

	"github.com/ajramos/keycheck/internal/db"
)

// Standard service errors
var (
	// ErrHistoryDisabled is returned by history operations when history.enabled is false
	ErrHistoryDisabled = errors.New("run history is disabled")
	// ErrRunInProgress is returned when a run is requested while another is active
	ErrRunInProgress = errors.New("a verification run is already in progress")
	// ErrInvalidInput marks bad caller input (filters, ids, formats)
	ErrInvalidInput = errors.New("invalid input provided")
)

// IsNotFoundError reports whether err means the requested run does not exist
func IsNotFoundError(err error) bool {
	return errors.Is(err, db.ErrRunNotFound) || errors.Is(err, db.ErrNoRuns)
}

// IsPermanentError determines if an error is permanent and should not be retried
func IsPermanentError(err error) bool {
	return errors.Is(err, ErrHistoryDisabled) ||
		errors.Is(err, ErrInvalidInput) ||
		IsNotFoundError(err)
}
