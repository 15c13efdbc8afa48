package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates an entity or update failed validation.
var ErrValidation = errors.New("validation failed")
