package dns

import "errors"

var (
	// ErrWire is the sentinel for DNS wire-format violations. All parse
	// failures in this package wrap it; callers branch with errors.Is.
	ErrWire = errors.New("dns wire error")

	// ErrMessageFull is returned by Builder methods when an emit would
	// cross the builder's limit. The builder's cursor is left at the last
	// completed record boundary, so the message built so far is valid.
	ErrMessageFull = errors.New("dns message full")
)
