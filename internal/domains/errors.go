package domains

import "errors"

var (
	// ErrDuplicateName is returned when a domain name is already taken.
	ErrDuplicateName = errors.New("domains: duplicate domain name")

	// ErrNotFound is returned when a named domain does not exist.
	ErrNotFound = errors.New("domains: domain not found")

	// ErrUnsupportedFormat is returned for file extensions other than
	// .json, .yml and .yaml, before any I/O happens.
	ErrUnsupportedFormat = errors.New("domains: unsupported file format")

	// ErrMalformedRecord is returned when a loaded record is missing a
	// coordinate field. The whole load is rejected.
	ErrMalformedRecord = errors.New("domains: malformed domain record")

	// ErrNoFrame is returned when a selection completes before any
	// frame dimensions are known.
	ErrNoFrame = errors.New("domains: no frame available")

	// ErrSelectionActive is returned by BeginSelection while another
	// selection is still pending.
	ErrSelectionActive = errors.New("domains: selection already in progress")

	// ErrSelectionCancelled resolves a blocked BeginSelection call
	// when the user aborts the selection.
	ErrSelectionCancelled = errors.New("domains: selection cancelled")
)
