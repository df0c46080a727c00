package stac

import (
	"errors"
	"fmt"
)

// Stable error codes reported to callers.
const (
	CodeFormatNotSupported = "FormatNotSupported"
	CodeLocationMissing    = "LocationMissing"
	CodeInvalidBoundingBox = "InvalidBoundingBox"
)

// ErrNoData is returned when no input was provided at all.
var ErrNoData = errors.New("no data provided")

// Error is an input error carrying a stable code and the offending values.
type Error struct {
	Code    string
	Message string
	Values  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a coded error.
func NewError(code, message string, values map[string]any) *Error {
	return &Error{Code: code, Message: message, Values: values}
}

// FormatNotSupported reports an input whose type could not be classified.
func FormatNotSupported(typ string) *Error {
	return NewError(CodeFormatNotSupported,
		fmt.Sprintf("the given data type %q is not supported", typ),
		map[string]any{"type": typ})
}

// LocationMissing reports an asset that cannot be placed on a map.
func LocationMissing(href string) *Error {
	return NewError(CodeLocationMissing,
		"can't visualize an asset without a location",
		map[string]any{"href": href})
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
