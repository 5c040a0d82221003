package types

import "errors"

// Domain errors shared across packages
var (
	// Request/session errors
	ErrInvalidParams      = errors.New("invalid params")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrIndexingInProgress = errors.New("indexing already in progress")
	ErrFileNotFound       = errors.New("file not found")
	ErrInternal           = errors.New("internal error")

	// Reference validation errors
	ErrMissingFilePath       = errors.New("file path is required")
	ErrInvalidLine           = errors.New("line must be >= 1")
	ErrInvalidColumn         = errors.New("column must be >= 1")
	ErrInvalidConfidence     = errors.New("confidence must be between 0 and 1")
	ErrInvalidClassification = errors.New("unknown classification")
)
