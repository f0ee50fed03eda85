package config

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error is a config error with source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	field := e.Field
	if field == "" {
		field = "config"
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			field, e.Message)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

// IsConfigError reports whether err is an *Error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// wrapCUEError converts the first CUE error into an *Error.
func wrapCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return toError(errs[0])
}

func toError(e cueerrors.Error) error {
	format, args := e.Msg()
	out := &Error{
		Field:   strings.Join(e.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
	if positions := cueerrors.Positions(e); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
