package printer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/exprbake/internal/ir"
)

// Literal renders an IR value as a Go expression of its exact Go type.
// It reports the import paths the expression needs.
func Literal(v any) (string, []string, error) {
	var imports []string
	float := func(f float64) string {
		switch {
		case math.IsNaN(f):
			imports = append(imports, "math")
			return "math.NaN()"
		case math.IsInf(f, 1):
			imports = append(imports, "math")
			return "math.Inf(1)"
		case math.IsInf(f, -1):
			imports = append(imports, "math")
			return "math.Inf(-1)"
		case f == 0 && math.Signbit(f):
			imports = append(imports, "math")
			return "math.Copysign(0, -1)"
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	}

	var out string
	switch x := v.(type) {
	case float64:
		out = float(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) || (f == 0 && math.Signbit(f)) {
			out = "float32(" + float(f) + ")"
		} else {
			out = "float32(" + strconv.FormatFloat(f, 'g', -1, 32) + ")"
		}
	case int64:
		out = "int64(" + strconv.FormatInt(x, 10) + ")"
	case bool:
		out = strconv.FormatBool(x)
	case ir.Vec2:
		imports = append(imports, ir.ImportPath)
		out = fmt.Sprintf("ir.Vec2{X: %s, Y: %s}", float(x.X), float(x.Y))
	case ir.Vec3:
		imports = append(imports, ir.ImportPath)
		out = fmt.Sprintf("ir.Vec3{X: %s, Y: %s, Z: %s}", float(x.X), float(x.Y), float(x.Z))
	case ir.V2RV2:
		imports = append(imports, ir.ImportPath)
		out = fmt.Sprintf("ir.V2RV2{NX: %s, NY: %s, RX: %s, RY: %s, Angle: %s}",
			float(x.NX), float(x.NY), float(x.RX), float(x.RY), float(x.Angle))
	case struct{}:
		out = "struct{}{}"
	default:
		return "", nil, &Error{Node: fmt.Sprintf("%T", v), Message: "not a literal value"}
	}
	return out, imports, nil
}
