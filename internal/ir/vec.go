package ir

// Vector arithmetic in function form. Generated code calls these so that
// operands are evaluated left to right as written.

func AddV2(a, b Vec2) Vec2           { return Vec2{a.X + b.X, a.Y + b.Y} }
func SubV2(a, b Vec2) Vec2           { return Vec2{a.X - b.X, a.Y - b.Y} }
func MulV2(a Vec2, f float64) Vec2   { return Vec2{a.X * f, a.Y * f} }
func ScaleV2(f float64, a Vec2) Vec2 { return Vec2{f * a.X, f * a.Y} }
func DivV2(a Vec2, f float64) Vec2   { return Vec2{a.X / f, a.Y / f} }
func NegV2(a Vec2) Vec2              { return Vec2{-a.X, -a.Y} }

func AddV3(a, b Vec3) Vec3           { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func SubV3(a, b Vec3) Vec3           { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func MulV3(a Vec3, f float64) Vec3   { return Vec3{a.X * f, a.Y * f, a.Z * f} }
func ScaleV3(f float64, a Vec3) Vec3 { return Vec3{f * a.X, f * a.Y, f * a.Z} }
func DivV3(a Vec3, f float64) Vec3   { return Vec3{a.X / f, a.Y / f, a.Z / f} }
func NegV3(a Vec3) Vec3              { return Vec3{-a.X, -a.Y, -a.Z} }

// VectorFunc names the helper implementing op on vector operands of types l
// and r, or "" when op is a plain Go operator for those types.
func VectorFunc(op Op, l, r Type) string {
	suffix := ""
	switch {
	case l == TVec2 || r == TVec2:
		suffix = "V2"
	case l == TVec3 || r == TVec3:
		suffix = "V3"
	default:
		return ""
	}
	switch op {
	case OpAdd:
		return "Add" + suffix
	case OpSub:
		return "Sub" + suffix
	case OpMul:
		if l == TFloat {
			return "Scale" + suffix
		}
		return "Mul" + suffix
	case OpDiv:
		return "Div" + suffix
	case OpNeg:
		return "Neg" + suffix
	}
	return ""
}

// VectorOp is the inverse of VectorFunc.
func VectorOp(name string) (op Op, t Type, ok bool) {
	if len(name) < 3 {
		return 0, TVoid, false
	}
	switch name[len(name)-2:] {
	case "V2":
		t = TVec2
	case "V3":
		t = TVec3
	default:
		return 0, TVoid, false
	}
	switch name[:len(name)-2] {
	case "Add":
		return OpAdd, t, true
	case "Sub":
		return OpSub, t, true
	case "Mul", "Scale":
		return OpMul, t, true
	case "Div":
		return OpDiv, t, true
	case "Neg":
		return OpNeg, t, true
	}
	return 0, TVoid, false
}
