package models

import "errors"

var (
	// ErrCapabilityUnavailable marks an optional facility that is missing.
	// It always leads to a fallback, never to a failed run.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrModelOutputUnusable means the model reply could not be turned into
	// products; the heuristic extractor takes over.
	ErrModelOutputUnusable = errors.New("model output unusable")
	// ErrPersistenceFailed is fatal for a run; the transaction was rolled back.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrUploadInvalid is returned synchronously for a request without a usable file.
	ErrUploadInvalid = errors.New("upload invalid")
	ErrNotFound      = errors.New("not found")
)
