package event

import (
	"errors"
	"fmt"
)

// PatternMismatchError reports an event whose tag matched a pattern but whose
// Go type is not the one the pattern narrows to. The catalog makes this
// unreachable; seeing it means a programming error.
type PatternMismatchError struct {
	Tag  Tag
	Want string
	Got  string
}

func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("pattern mismatch for tag %q: want %s, got %s", e.Tag, e.Want, e.Got)
}

// UnknownTagError is returned by Decode for tags outside the registry.
type UnknownTagError struct {
	Tag Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown event tag %q", e.Tag)
}

// IsPatternMismatch returns true if err is a PatternMismatchError.
func IsPatternMismatch(err error) bool {
	var pm *PatternMismatchError
	return errors.As(err, &pm)
}

// IsUnknownTag returns true if err is an UnknownTagError.
func IsUnknownTag(err error) bool {
	var ut *UnknownTagError
	return errors.As(err, &ut)
}
