package models

import "errors"

var (
	// ErrValidation marks user-supplied fields that fail a precondition.
	// No state is mutated when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrImport marks an import payload that could not be parsed.
	ErrImport = errors.New("import failed")

	// ErrRemoteUnavailable marks a remote document store that cannot be
	// reached or initialized.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrNotFound is returned by stores when a key has no value.
	ErrNotFound = errors.New("not found")
)
