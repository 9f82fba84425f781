package types

import "errors"

var (
	// ErrConfiguration unsupported or inconsistent input, never retried
	ErrConfiguration = errors.New("configuration error")
	// ErrInvariant observed state contradicts what the provisioner relies on
	ErrInvariant = errors.New("invariant violation")
)
