package argctx

import (
	"errors"
	"fmt"

	"github.com/roach88/exprbake/internal/ir"
)

// ResolutionError reports a name or type reference that the context cannot
// satisfy. It is raised while the formula is built, never at run time.
type ResolutionError struct {
	Name    string
	Type    ir.Type
	Message string
}

func (e *ResolutionError) Error() string {
	var what string
	switch {
	case e.Name != "" && e.Type != ir.TVoid:
		what = fmt.Sprintf("%q of type %s", e.Name, e.Type)
	case e.Name != "":
		what = fmt.Sprintf("%q", e.Name)
	default:
		what = "argument of type " + e.Type.String()
	}
	if e.Message != "" {
		return "cannot resolve " + what + ": " + e.Message
	}
	return "cannot resolve " + what
}

// IsResolutionError returns true if err is or wraps a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// ScopeError reports a broken Bind/Release discipline.
type ScopeError struct {
	Name    string
	Message string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("alias %q %s", e.Name, e.Message)
}
