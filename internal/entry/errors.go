package entry

import "errors"

// Domain-specific errors for config entries.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, entry.ErrEntryNotFound) {
//	    // respond 404
//	}
var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("entry: not found")

	// ErrEntryExists is returned when another entry already uses the name,
	// or a name that maps to the same proxy entity.
	ErrEntryExists = errors.New("entry: already exists")

	// ErrInvalidEntry is returned when a name or entity list fails validation.
	ErrInvalidEntry = errors.New("entry: invalid")

	// ErrNotLoaded is returned when an entry exists but has no running instance.
	ErrNotLoaded = errors.New("entry: not loaded")

	// ErrOptionNotOffered is returned when selecting an option the proxy does not list.
	ErrOptionNotOffered = errors.New("entry: option not offered")
)
