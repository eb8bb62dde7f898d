package ir

import (
	"errors"
	"fmt"
	"strings"
)

// TypeError reports an ill-typed node construction or a failed typed view.
// Builders panic with *TypeError; the compile entry point recovers it into a
// compile error for the one formula being built.
type TypeError struct {
	Op      string // operator, function or construct being built
	Got     []Type
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("type error: %s: %s", e.Op, e.Message)
	}
	parts := make([]string, len(e.Got))
	for i, t := range e.Got {
		parts[i] = t.String()
	}
	return fmt.Sprintf("type error: %s not defined on (%s)", e.Op, strings.Join(parts, ", "))
}

// IsTypeError returns true if err is or wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

func typePanic(op, format string, args ...any) {
	panic(&TypeError{Op: op, Message: fmt.Sprintf(format, args...)})
}
