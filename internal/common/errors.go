package common

import (
	"errors"
	"strings"
)

var (
	// storage errors
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("concurrent modification")

	// auth errors
	ErrorUnauthorized       = errors.New("unauthorized")
	ErrorInvalidToken       = errors.New("invalid token")
	ErrorInvalidCredentials = errors.New("invalid username or password")

	// authorization errors
	ErrorForbidden  = errors.New("forbidden")
	ErrorNotFriends = errors.New("users are not friends")
	ErrorSelfTarget = errors.New("cannot target yourself")

	// conflict errors
	ErrorAlreadyExists  = errors.New("already exists")
	ErrorAlreadyFriends = errors.New("already friends")
	ErrorRequestPending = errors.New("friend request already pending")

	ErrorValidation = errors.New("validation error")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the list of rejected fields. It matches
// ErrorValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrorValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrorValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrorValidation
}

// Invalid builds a single-field ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Validator accumulates field errors.
type Validator struct {
	fields []FieldError
}

func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: message})
	}
}

// Err returns nil when every check passed.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
