package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/exprbake/internal/compiler"
)

// LoadMode controls how errors are handled during script loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadError represents an error that occurred while loading a script.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// LoadScripts parses the scripts at paths in order. Two paths holding the
// same text share one file key and are reported as duplicates.
func LoadScripts(paths []string, mode LoadMode) ([]*compiler.Script, []error) {
	var (
		scripts []*compiler.Script
		errs    []error
	)
	seen := map[string]string{}
	for _, path := range paths {
		s, err := loadScript(path)
		if err == nil {
			id := s.Key.MustID()
			if prev, dup := seen[id]; dup {
				err = &LoadError{Code: ErrCodeScript, Path: path, Message: fmt.Sprintf("same content as %s", prev)}
			} else {
				seen[id] = path
			}
		}
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		scripts = append(scripts, s)
	}
	return scripts, errs
}

func loadScript(path string) (*compiler.Script, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "script not found"}
	}
	s, err := compiler.LoadScript(path)
	if err != nil {
		return nil, convertCompileError(path, err)
	}
	return s, nil
}

// convertCompileError keeps the CUE position of script errors.
func convertCompileError(path string, err error) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		msg := ce.Message
		if msg == "" && ce.Err != nil {
			msg = ce.Err.Error()
		}
		return &LoadError{Code: ErrCodeScript, Path: path, Message: fmt.Sprintf("%s: %s", ce.Formula, msg), Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeScript, Path: path, Message: err.Error()}
}

// errorStrings renders errs for JSON details.
func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
