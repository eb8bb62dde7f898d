package queryir

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Validate checks that every predicate of q names a known field. All
// problems are reported together.
func Validate(q Query) error {
	v := &validator{}
	switch query := q.(type) {
	case Select:
		v.predicate(query.Filter)
	case *Select:
		if query == nil {
			return fmt.Errorf("nil query")
		}
		v.predicate(query.Filter)
	case nil:
		return fmt.Errorf("nil query")
	default:
		return fmt.Errorf("unknown query type %T", q)
	}
	return v.err
}

type validator struct {
	err error
}

func (v *validator) add(format string, args ...any) {
	v.err = multierr.Append(v.err, fmt.Errorf(format, args...))
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.field(pred.Field)
	case *Equals:
		v.field(pred.Field)
	case Prefix:
		v.field(pred.Field)
	case *Prefix:
		v.field(pred.Field)
	case And:
		v.and(pred)
	case *And:
		v.and(*pred)
	default:
		v.add("unknown predicate type %T", p)
	}
}

func (v *validator) and(a And) {
	for _, p := range a.Predicates {
		v.predicate(p)
	}
}

func (v *validator) field(f Field) {
	if !f.Known() {
		v.add("unknown field %q", string(f))
	}
}

// Parse reads a filter in the text form described in the package
// documentation. An empty string gives a nil predicate.
func Parse(where string) (Predicate, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return nil, nil
	}
	var (
		preds []Predicate
		errs  error
	)
	for i, term := range strings.Split(where, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(term), "=")
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("term %d: %q is not field=value", i+1, term))
			continue
		}
		f := Field(strings.TrimSpace(name))
		if !f.Known() {
			errs = multierr.Append(errs, fmt.Errorf("term %d: unknown field %q", i+1, string(f)))
			continue
		}
		value = strings.TrimSpace(value)
		if prefix, ok := strings.CutSuffix(value, "*"); ok {
			preds = append(preds, Prefix{Field: f, Value: prefix})
		} else {
			preds = append(preds, Equals{Field: f, Value: value})
		}
	}
	if errs != nil {
		return nil, errs
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return And{Predicates: preds}, nil
}
