package models

import "errors"

var (
	// ErrNotFound indicates the entity or project does not exist locally.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyLinked indicates the entity already has a remote counterpart.
	ErrAlreadyLinked = errors.New("entity already linked")
	// ErrInvalidEntity indicates a malformed entity or request.
	ErrInvalidEntity = errors.New("invalid entity")
)
