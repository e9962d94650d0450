// Package usecase implements the card catalog client used by reconciliation.
package usecase

import "errors"

var (
	// ErrCardNotFound is returned when the catalog has no card for the requested name.
	ErrCardNotFound = errors.New("card not found in catalog")

	// ErrCatalogUnavailable is returned when the catalog could not be reached
	// after the retry policy was exhausted. Callers treat it as transient.
	ErrCatalogUnavailable = errors.New("card catalog unavailable")

	// ErrCatalogTransient marks a single failed request that is worth retrying
	// (network error, 429, 5xx). Sources wrap it; the service never returns it.
	ErrCatalogTransient = errors.New("transient catalog failure")
)
