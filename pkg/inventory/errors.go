package inventory

import "errors"

var (
	// ErrInvalidItem wraps every item validation failure so loaders can report bad catalog rows.
	ErrInvalidItem = errors.New("invalid item")
	// ErrInvalidDenomination wraps reserve validation failures.
	ErrInvalidDenomination = errors.New("invalid denomination")
)
