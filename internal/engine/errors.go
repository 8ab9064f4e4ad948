package engine

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxErrorLen bounds the message carried by GeneralError and EngineError.
const MaxErrorLen = 511

// GeneralError is a host level failure, for example a directory that could
// not be created or a configuration file that could not be read.
type GeneralError struct {
	Msg string
}

func (e *GeneralError) Error() string { return e.Msg }

// NewGeneralError formats a GeneralError.
func NewGeneralError(format string, args ...any) *GeneralError {
	return &GeneralError{Msg: truncate(fmt.Sprintf(format, args...))}
}

// EngineError is returned by Engine operations when the engine failed. The
// engine has already been shut down when the caller sees it; the only way
// forward is a fresh Start.
type EngineError struct {
	GeneralError
}

// As lets errors.As match an EngineError against *GeneralError.
func (e *EngineError) As(target any) bool {
	if g, ok := target.(**GeneralError); ok {
		*g = &e.GeneralError
		return true
	}
	return false
}

func newEngineError(format string, args ...any) *EngineError {
	return &EngineError{GeneralError{Msg: truncate(fmt.Sprintf(format, args...))}}
}

// IsEngineError reports whether err is or wraps an EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// IsGeneralError reports whether err is or wraps a GeneralError. Engine
// errors count as general errors.
func IsGeneralError(err error) bool {
	var ge *GeneralError
	return errors.As(err, &ge)
}

func truncate(s string) string {
	if len(s) <= MaxErrorLen {
		return s
	}
	n := MaxErrorLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
