package parser

import (
	"errors"
	"fmt"
)

// MalformedPageError indicates the markup lacks a structure the site
// template always carries.
type MalformedPageError struct {
	Reason string
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page: %s", e.Reason)
}

// ParseError indicates the category pagination could not be read.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Errorf("parse pagination: %s: %w", e.Reason, e.Err).Error()
	}
	return fmt.Sprintf("parse pagination: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is or wraps a *MalformedPageError.
func IsMalformed(err error) bool {
	var malformed *MalformedPageError
	return errors.As(err, &malformed)
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
