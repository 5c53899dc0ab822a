package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: key or record does not exist (or has expired) in the store
//   - ErrUnavailable: the backing store could not be reached or timed out
//   - ErrCorrupt: a stored payload could not be decoded
//   - ErrInvalidState: entity in wrong state for requested operation
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrCorrupt      = errors.New("corrupt payload")
	ErrInvalidState = errors.New("invalid state")
)
