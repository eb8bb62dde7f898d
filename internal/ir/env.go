package ir

// Env carries the inputs of one invocation of a compiled formula.
type Env struct {
	Args  []any
	State State
}

// With returns an Env for a nested call that shares the side table.
func (e *Env) With(args ...any) *Env {
	var st State
	if e != nil {
		st = e.State
	}
	return &Env{Args: args, State: st}
}

// State is the per-entity side table. Values stored here persist across
// independent compiled calls made for the same entity.
type State map[string]any

// Set stores v under key. Set on a nil State panics, as for any nil map.
func (s State) Set(key string, v any) {
	s[key] = v
}

// Get returns the value stored under key, or def when absent or of another type.
func Get[T any](s State, key string, def T) T {
	if v, ok := s[key].(T); ok {
		return v
	}
	return def
}

// GetAny is the untyped form of Get used by the evaluator.
func (s State) GetAny(key string, def any) any {
	v, ok := s[key]
	if !ok {
		return def
	}
	want, _ := TypeOfValue(def)
	if got, isIR := TypeOfValue(v); !isIR || got != want {
		return def
	}
	return v
}

// Callable is a compiled formula.
type Callable func(env *Env) any
