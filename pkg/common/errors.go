package common

import "errors"

// Every message is prefixed with "decaygraph:" so failures are easy to grep
// in build logs. Callers match with errors.Is; producers wrap with
// fmt.Errorf("context: %w", ErrX).
var (
	// ErrConfiguration signals a contradictory or unresolvable build
	// configuration, such as an allow-list and a deny-list given together.
	ErrConfiguration = errors.New("decaygraph: configuration error")

	// ErrSchemaMismatch signals that a source file lacks a required column or
	// disagrees with the first file on the available columns.
	ErrSchemaMismatch = errors.New("decaygraph: schema mismatch")

	// ErrEmptyInput signals that no source files or no samples remain.
	ErrEmptyInput = errors.New("decaygraph: empty input")

	// ErrEmptySelection signals that a sample selected zero candidate rows.
	ErrEmptySelection = errors.New("decaygraph: empty row selection")

	// ErrIndexOutOfRange signals a dataset access outside [0, Len()).
	ErrIndexOutOfRange = errors.New("decaygraph: index out of range")

	// ErrState signals a dataset phase called out of order.
	ErrState = errors.New("decaygraph: invalid build state")
)
