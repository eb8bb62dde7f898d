package syntax

import (
	"errors"
	"fmt"

	"github.com/roach88/exprbake/internal/argctx"
	"github.com/roach88/exprbake/internal/ir"
)

// Error reports source that is malformed or outside the accepted dialect.
type Error struct {
	Pos     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Pos != "" {
		return e.Pos + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsError returns true if err is or wraps a *Error.
func IsError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// catch turns the panics raised while building nodes back into errors.
// Anything else is a bug and keeps unwinding.
func catch(err *error) {
	r := recover()
	if r == nil {
		return
	}
	switch e := r.(type) {
	case *Error:
		*err = e
	case *ir.TypeError:
		*err = e
	case *argctx.ResolutionError:
		*err = e
	default:
		panic(r)
	}
}
