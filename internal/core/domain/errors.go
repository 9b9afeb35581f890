package domain

import "errors"

var (
	// ErrNotFound is returned when a version or its content does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageExhausted is returned when persisting would exceed the storage quota.
	ErrStorageExhausted = errors.New("storage exhausted")

	// ErrDrainInFlight is returned by an explicit flush while another drain runs.
	ErrDrainInFlight = errors.New("drain already in flight")

	// ErrPipelineClosed is returned by operations on a closed pipeline.
	ErrPipelineClosed = errors.New("pipeline closed")

	// ErrInvalidVersion is returned when a capture request is missing required fields.
	ErrInvalidVersion = errors.New("invalid version")
)
