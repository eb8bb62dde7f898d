package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError codes.
const (
	ErrCodeResolution      = "RESOLUTION"
	ErrCodeType            = "TYPE"
	ErrCodeDifferentiation = "DIFFERENTIATION"
	ErrCodeSyntax          = "SYNTAX"
	ErrCodeServe           = "SERVE"
	ErrCodeScript          = "SCRIPT"
)

// CompileError reports why one formula, or one script field, could not be
// compiled. Only that formula is lost; the caller may go on with the rest.
type CompileError struct {
	Code    string
	Formula string // formula or script field
	Message string
	Pos     token.Pos
	Err     error
}

func (e *CompileError) Error() string {
	msg := e.detail()
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Formula, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Code, e.Formula, msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) detail() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func hasCode(err error, code string) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == code
}

// IsCompileError returns true if err is or wraps a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// IsResolutionError returns true for formulas referring to unknown names.
func IsResolutionError(err error) bool { return hasCode(err, ErrCodeResolution) }

// IsTypeError returns true for ill-typed formulas.
func IsTypeError(err error) bool { return hasCode(err, ErrCodeType) }

// IsDifferentiationError returns true for derivatives with no rule.
func IsDifferentiationError(err error) bool { return hasCode(err, ErrCodeDifferentiation) }

// IsServeError returns true when baked artifacts could not be served.
func IsServeError(err error) bool { return hasCode(err, ErrCodeServe) }

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Code: ErrCodeScript, Formula: field, Err: err}
	}

	// Return first error with position info
	firstErr := errs[0]
	ce := &CompileError{Code: ErrCodeScript, Formula: field, Message: firstErr.Error(), Err: err}
	if positions := cueerrors.Positions(firstErr); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
