package printer

import (
	"fmt"
	"reflect"
)

// Refs maps source objects to the names of functions already generated for
// them. Keys are compared by identity, never by value: two distinct objects
// with equal contents are two entries, and one object recorded twice is
// printed as a reference to its first function.
type Refs struct {
	names map[any]string
}

// NewRefs returns an empty identity map.
func NewRefs() *Refs {
	return &Refs{names: map[any]string{}}
}

func identityKey(orig any) error {
	if orig == nil {
		return fmt.Errorf("nil object has no identity")
	}
	switch reflect.TypeOf(orig).Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return nil
	}
	return fmt.Errorf("%T has no identity; only pointer-like objects can be referenced", orig)
}

// Add records name as the function generated for orig.
func (r *Refs) Add(orig any, name string) error {
	if err := identityKey(orig); err != nil {
		return err
	}
	if prev, ok := r.names[orig]; ok && prev != name {
		return fmt.Errorf("object already recorded as %s", prev)
	}
	r.names[orig] = name
	return nil
}

// Name returns the function generated for orig.
func (r *Refs) Name(orig any) (string, bool) {
	if r == nil || identityKey(orig) != nil {
		return "", false
	}
	name, ok := r.names[orig]
	return name, ok
}

// Len is the number of recorded objects.
func (r *Refs) Len() int { return len(r.names) }
