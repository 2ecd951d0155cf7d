package edit

import (
	"errors"
	"fmt"
)

var (
	ErrNoMatch        = errors.New("no match")
	ErrAmbiguousMatch = errors.New("ambiguous match")
	ErrUnknownAction  = errors.New("unknown action")
	ErrMissingField   = errors.New("missing field")
	ErrStepLimit      = errors.New("tool step limit reached for this turn")
	ErrOutOfOrder     = errors.New("operation replayed out of order")
)

// ReplaceError reports a text replacement whose old text did not occur
// exactly once.
type ReplaceError struct {
	Path  string
	Count int
}

func (e *ReplaceError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("replace %s: old text not found; view the file and copy the exact text to replace", e.Path)
	}
	return fmt.Sprintf("replace %s: old text occurs %d times; include more surrounding context so it matches exactly once", e.Path, e.Count)
}

func (e *ReplaceError) Is(target error) bool {
	if e.Count == 0 {
		return target == ErrNoMatch
	}
	return target == ErrAmbiguousMatch
}
