package deriv

import (
	"errors"
	"fmt"
)

// Error reports a node with no derivative rule. It aborts the compilation
// of the one formula being differentiated.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot differentiate %s: %s", e.Op, e.Message)
}

// IsError returns true if err is or wraps a *Error.
func IsError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
