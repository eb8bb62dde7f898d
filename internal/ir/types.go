package ir

import (
	"fmt"
	"math"
	"strings"
)

// Type is the static type of an IR node.
type Type uint8

const (
	TVoid Type = iota
	TBool
	TInt     // int64
	TFloat32 // float32
	TFloat   // float64
	TVec2
	TVec3
	TV2RV2
)

var typeNames = [...]string{
	TVoid:    "void",
	TBool:    "bool",
	TInt:     "int",
	TFloat32: "float32",
	TFloat:   "float",
	TVec2:    "vec2",
	TVec3:    "vec3",
	TV2RV2:   "v2rv2",
}

var goTypeNames = [...]string{
	TVoid:    "struct{}",
	TBool:    "bool",
	TInt:     "int64",
	TFloat32: "float32",
	TFloat:   "float64",
	TVec2:    "ir.Vec2",
	TVec3:    "ir.Vec3",
	TV2RV2:   "ir.V2RV2",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// GoType returns the Go spelling of t as used in generated source.
func (t Type) GoType() string {
	if int(t) < len(goTypeNames) {
		return goTypeNames[t]
	}
	return "any"
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return TVoid, fmt.Errorf("unknown type %q", s)
}

// TypeFromGo maps a Go type spelling from generated source back to a Type.
func TypeFromGo(s string) (Type, bool) {
	for i, name := range goTypeNames {
		if name == s {
			return Type(i), true
		}
	}
	return TVoid, false
}

// IsNumeric reports whether t is a scalar numeric type.
func (t Type) IsNumeric() bool {
	return t == TInt || t == TFloat32 || t == TFloat
}

// IsVector reports whether t is a vector value type supporting arithmetic.
func (t Type) IsVector() bool {
	return t == TVec2 || t == TVec3
}

// IsFloat reports whether t is a floating-point scalar.
func (t Type) IsFloat() bool {
	return t == TFloat32 || t == TFloat
}

// Exact reports whether every value of type from converts to type to
// without rounding or truncation. Only float32 to float64 qualifies: an
// int64 above 2^53 has no float64, let alone a float32.
func Exact(from, to Type) bool {
	return from == to || from == TFloat32 && to == TFloat
}

// Vec2 is a 2D vector.
type Vec2 struct{ X, Y float64 }

// Vec3 is a 3D vector.
type Vec3 struct{ X, Y, Z float64 }

// V2RV2 is a compound offset: a non-rotated part, a rotated part and the
// rotation angle in degrees.
type V2RV2 struct{ NX, NY, RX, RY, Angle float64 }

// V2 constructs a Vec2; generated code calls it for non-constant arguments.
func V2(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

// V3 constructs a Vec3.
func V3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// RV2 constructs a V2RV2.
func RV2(nx, ny, rx, ry, angle float64) V2RV2 {
	return V2RV2{NX: nx, NY: ny, RX: rx, RY: ry, Angle: angle}
}

// Mag is the Euclidean length of v.
func (v Vec2) Mag() float64 { return math.Hypot(v.X, v.Y) }

// Mag is the Euclidean length of v.
func (v Vec3) Mag() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Rotated is the rotated part turned by Angle degrees, plus the non-rotated part.
func (v V2RV2) Rotated() Vec2 {
	s, c := math.Sincos(v.Angle * math.Pi / 180)
	return Vec2{X: v.NX + c*v.RX - s*v.RY, Y: v.NY + s*v.RX + c*v.RY}
}

// TypeOfValue returns the IR type of a Go value, if it has one.
func TypeOfValue(v any) (Type, bool) {
	switch v.(type) {
	case struct{}:
		return TVoid, true
	case bool:
		return TBool, true
	case int64:
		return TInt, true
	case float32:
		return TFloat32, true
	case float64:
		return TFloat, true
	case Vec2:
		return TVec2, true
	case Vec3:
		return TVec3, true
	case V2RV2:
		return TV2RV2, true
	}
	return TVoid, false
}

// Zero returns the zero value of t.
func Zero(t Type) any {
	switch t {
	case TBool:
		return false
	case TInt:
		return int64(0)
	case TFloat32:
		return float32(0)
	case TFloat:
		return float64(0)
	case TVec2:
		return Vec2{}
	case TVec3:
		return Vec3{}
	case TV2RV2:
		return V2RV2{}
	}
	return struct{}{}
}

// One returns the multiplicative identity of a numeric type.
func One(t Type) any {
	switch t {
	case TInt:
		return int64(1)
	case TFloat32:
		return float32(1)
	}
	return float64(1)
}

// IsZeroValue reports whether v is the zero of its numeric or vector type.
func IsZeroValue(v any) bool {
	switch x := v.(type) {
	case int64:
		return x == 0
	case float32:
		return x == 0
	case float64:
		return x == 0
	case Vec2:
		return x == Vec2{}
	case Vec3:
		return x == Vec3{}
	}
	return false
}

// IsOneValue reports whether v is the scalar one.
func IsOneValue(v any) bool {
	switch x := v.(type) {
	case int64:
		return x == 1
	case float32:
		return x == 1
	case float64:
		return x == 1
	}
	return false
}

// Signature describes the parameter and return types of a compiled formula.
type Signature struct {
	Params []Type
	Ret    Type
}

// Sig is shorthand for building a Signature.
func Sig(ret Type, params ...Type) Signature {
	return Signature{Params: params, Ret: ret}
}

// String renders the signature as "ret(p1,p2)".
func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return s.Ret.String() + "(" + strings.Join(parts, ",") + ")"
}

// Equal reports whether two signatures are identical.
func (s Signature) Equal(o Signature) bool {
	if s.Ret != o.Ret || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// ParseSignature parses the form produced by Signature.String.
func ParseSignature(s string) (Signature, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	ret, err := ParseType(s[:open])
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", s, err)
	}
	sig := Signature{Ret: ret}
	inner := s[open+1 : len(s)-1]
	if inner == "" {
		return sig, nil
	}
	for _, p := range strings.Split(inner, ",") {
		t, err := ParseType(p)
		if err != nil {
			return Signature{}, fmt.Errorf("signature %q: %w", s, err)
		}
		sig.Params = append(sig.Params, t)
	}
	return sig, nil
}

// MustParseSignature is like ParseSignature but panics on error.
// Generated index files use it with signatures the exporter produced.
func MustParseSignature(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return sig
}
