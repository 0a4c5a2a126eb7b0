// Package apperr defines sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrVaultUnknown      = errors.New("unknown vault")
	ErrSlugCollision     = errors.New("slug collision")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNotConfigured     = errors.New("feature not configured")
)
