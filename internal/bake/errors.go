package bake

import (
	"errors"
	"fmt"
)

// ServeError codes.
const (
	ErrCodeExhausted         = "EXHAUSTED"
	ErrCodeSignatureMismatch = "SIGNATURE_MISMATCH"
	ErrCodeMissingFile       = "MISSING_FILE"
	ErrCodeProxyMismatch     = "PROXY_MISMATCH"
	ErrCodePoisoned          = "POISONED"
)

// ServeError reports that baked artifacts do not match the formulas asking
// for them. It is fatal: the recorder that produced it refuses every later
// request, since substituting a different function would change behavior.
type ServeError struct {
	Code    string
	FileID  string
	Index   int // artifact position, -1 when not applicable
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ServeError) Error() string {
	msg := fmt.Sprintf("serve %s: %s", e.Code, e.FileID)
	if e.Index >= 0 {
		msg += fmt.Sprintf("[%d]", e.Index)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause of a POISONED error.
func (e *ServeError) Unwrap() error { return e.Err }

// IsServeError returns true if err is or wraps a *ServeError.
func IsServeError(err error) bool {
	var se *ServeError
	return errors.As(err, &se)
}

// IsExhausted returns true if err reports more requests than baked artifacts.
func IsExhausted(err error) bool {
	var se *ServeError
	for errors.As(err, &se) {
		if se.Code == ErrCodeExhausted {
			return true
		}
		err = se.Err
	}
	return false
}

// DisciplineError reports a file context closed out of order or twice.
// It is raised with panic: the recorder's bookkeeping can no longer be
// trusted and there is nothing sensible for the caller to do.
type DisciplineError struct {
	FileID  string
	Message string
}

// Error implements the error interface.
func (e *DisciplineError) Error() string {
	return fmt.Sprintf("file context %s: %s", e.FileID, e.Message)
}

// IsDisciplineError returns true if err is or wraps a *DisciplineError.
func IsDisciplineError(err error) bool {
	var de *DisciplineError
	return errors.As(err, &de)
}

// FormulaError reports that the artifact being served holds the place of a
// formula that failed to compile when it was baked. Serving it uses up its
// slot, so the artifacts after it still line up, and the recorder stays
// usable.
type FormulaError struct {
	FileID string
	Index  int
	Code   string // the compile error code recorded at bake time
	Reason string
}

// Error implements the error interface.
func (e *FormulaError) Error() string {
	return fmt.Sprintf("%s[%d]: formula failed to compile when baked (%s): %s", e.FileID, e.Index, e.Code, e.Reason)
}

// IsFormulaError returns true if err is or wraps a *FormulaError.
func IsFormulaError(err error) bool {
	var fe *FormulaError
	return errors.As(err, &fe)
}
