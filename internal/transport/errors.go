package transport

import "errors"

// ErrInvalidState is returned when an operation is attempted from a state
// that does not permit it (spec.md §7): connect() outside Init.
var ErrInvalidState = errors.New("transport: invalid state")
