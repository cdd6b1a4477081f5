package domain

import "errors"

// Error taxonomy shared by the store, snapshot engine, and HTTP layer.
// Callers classify failures with errors.Is and act on the category;
// wrapped context (entity id, expected vs found marker) travels alongside.
var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation (company name, worker RUT).
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")
	// ErrFormat indicates an unrecognized or corrupt bundle.
	ErrFormat = errors.New("unrecognized bundle format")
	// ErrIntegrity indicates staged restore data failed referential validation.
	ErrIntegrity = errors.New("referential integrity violation")
	// ErrStorage indicates an underlying store or filesystem failure.
	ErrStorage = errors.New("storage failure")
	// ErrPartialFailure indicates the operation succeeded but an auxiliary
	// step (history recording) did not.
	ErrPartialFailure = errors.New("operation succeeded but was not recorded")
)
