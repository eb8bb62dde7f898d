package printer

import (
	"errors"
	"fmt"
)

// Error reports a node or value with no textual form. Printing errors only
// occur while baking; the live compiled function is unaffected.
type Error struct {
	Node    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot print %s: %s", e.Node, e.Message)
}

// IsError returns true if err is or wraps a *Error.
func IsError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}
