package subscription

import "errors"

var (
	// ErrRecordNotFound is returned by edits and deletes against an id that
	// is not in the store. Callers treat it as a recoverable condition, not
	// a fault.
	ErrRecordNotFound = errors.New("subscription record not found")

	// ErrUnknownDomain blocks a save when no base domain could be derived
	// from the page and the caller did not force the save.
	ErrUnknownDomain = errors.New("could not determine base domain")
)
