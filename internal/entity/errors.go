package entity

import (
	"context"
	"errors"
	"fmt"

	"cell-tracer/internal/pixelops"
)

// Core error kinds. Callers match them with errors.Is.
var (
	ErrNotFound       = pixelops.ErrNotFound
	ErrInvalidRadius  = pixelops.ErrInvalidRadius
	ErrInvalidID      = pixelops.ErrInvalidID
	ErrInvalidEid     = errors.New("invalid eid")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrInvalidContour = errors.New("invalid contour")
	ErrNonAdjacent    = errors.New("entities are not adjacent")
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrSchema         = errors.New("schema error")
	ErrUnknownField   = errors.New("unknown field")
	ErrCancelled      = errors.New("cancelled")
)

// SchemaError reports a missing or malformed field in an entity file.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("schema error: field %q", e.Field)
	}
	return fmt.Sprintf("schema error: field %q: %s", e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// UnknownFieldError reports a key a strict reader does not recognise.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// Cancelled wraps the context's error as ErrCancelled.
func Cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}
