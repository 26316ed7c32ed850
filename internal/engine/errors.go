package engine

import (
	"errors"
	"fmt"
)

// LabelError reports a failed call to the labeler for one request
type LabelError struct {
	Key string
	Err error
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("label spans for %s: %v", e.Key, e.Err)
}

func (e *LabelError) Unwrap() error {
	return e.Err
}

func WrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrClosed       = errors.New("engine closed")
)
