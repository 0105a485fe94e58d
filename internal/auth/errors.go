package auth

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("conflict")
	ErrInvalidCode         = errors.New("invalid code")
	ErrExpiredCode         = errors.New("code expired")
	ErrUnauthorized        = errors.New("invalid email or password")
	ErrDeliveryUnavailable = errors.New("code delivery unavailable")
	ErrNotFound            = errors.New("not found")
	ErrInternal            = errors.New("internal error")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError names the identity field that is already taken.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return "user already exists"
	}
	return e.Field + " already exists"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
