package harness

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/exprbake/internal/ir"
)

// convert turns a decoded YAML value into a value of IR type t.
func convert(v any, t ir.Type) (any, error) {
	switch t {
	case ir.TVoid:
		if v != nil {
			return nil, fmt.Errorf("void takes no value, got %v", v)
		}
		return nil, nil
	case ir.TBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		return b, nil
	case ir.TInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		}
		return nil, fmt.Errorf("want int, got %T", v)
	case ir.TFloat32:
		f, err := number(v)
		return float32(f), err
	case ir.TFloat:
		return number(v)
	case ir.TVec2:
		c, err := components(v, 2)
		if err != nil {
			return nil, err
		}
		return ir.V2(c[0], c[1]), nil
	case ir.TVec3:
		c, err := components(v, 3)
		if err != nil {
			return nil, err
		}
		return ir.V3(c[0], c[1], c[2]), nil
	case ir.TV2RV2:
		c, err := components(v, 5)
		if err != nil {
			return nil, err
		}
		return ir.RV2(c[0], c[1], c[2], c[3], c[4]), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

// stateValue converts a side-table value: numbers become floats and lists
// of two or three numbers become vectors.
func stateValue(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case []any:
		switch len(x) {
		case 2:
			return convert(v, ir.TVec2)
		case 3:
			return convert(v, ir.TVec3)
		}
		return nil, fmt.Errorf("state vectors have 2 or 3 components, got %d", len(x))
	}
	return number(v)
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func components(v any, n int) ([]float64, error) {
	list, ok := v.([]any)
	if !ok || len(list) != n {
		return nil, fmt.Errorf("want list of %d numbers, got %v", n, v)
	}
	out := make([]float64, n)
	for i, e := range list {
		f, err := number(e)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// within reports whether a and b hold the same IR type and differ by at
// most tol in every component. A zero tol demands exact equality.
func within(a, b any, tol float64) bool {
	near := func(x, y float64) bool {
		if tol == 0 {
			return x == y
		}
		return math.Abs(x-y) <= tol
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case float32:
		y, ok := b.(float32)
		return ok && near(float64(x), float64(y))
	case float64:
		y, ok := b.(float64)
		return ok && near(x, y)
	case ir.Vec2:
		y, ok := b.(ir.Vec2)
		return ok && near(x.X, y.X) && near(x.Y, y.Y)
	case ir.Vec3:
		y, ok := b.(ir.Vec3)
		return ok && near(x.X, y.X) && near(x.Y, y.Y) && near(x.Z, y.Z)
	case ir.V2RV2:
		y, ok := b.(ir.V2RV2)
		return ok && near(x.NX, y.NX) && near(x.NY, y.NY) &&
			near(x.RX, y.RX) && near(x.RY, y.RY) && near(x.Angle, y.Angle)
	}
	return false
}

// formatValue renders an IR value with the shortest exact float form.
func formatValue(v any) string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	tuple := func(xs ...float64) string {
		parts := make([]string, len(xs))
		for i, x := range xs {
			parts[i] = f(x)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	switch x := v.(type) {
	case nil:
		return "void"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return f(x)
	case ir.Vec2:
		return tuple(x.X, x.Y)
	case ir.Vec3:
		return tuple(x.X, x.Y, x.Z)
	case ir.V2RV2:
		return tuple(x.NX, x.NY, x.RX, x.RY, x.Angle)
	}
	return fmt.Sprintf("%v", v)
}
