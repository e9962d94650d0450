// Package usecase implements the vision extractor.
package usecase

import "errors"

var (
	// ErrImageTooDegraded is returned when the photo is unreadable, in an
	// unsupported format, or below the resolution floor. Fatal per submission.
	ErrImageTooDegraded = errors.New("image too degraded for extraction")

	// ErrExtractionFailed is returned when the model call failed after retry
	// or produced no usable entries. Fatal per submission.
	ErrExtractionFailed = errors.New("card extraction failed")

	// ErrModelTransient marks a model call failure worth retrying
	// (timeout, 429, 5xx). Backends wrap it.
	ErrModelTransient = errors.New("transient vision model failure")

	// ErrMalformedResponse marks model output that does not parse as the
	// expected structure. Backends wrap it; it is retried like a transient failure.
	ErrMalformedResponse = errors.New("malformed vision model response")
)
