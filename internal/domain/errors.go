// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID indicates an insert collided with an existing correlation id.
var ErrDuplicateID = errors.New("duplicate correlation id")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation failed")
