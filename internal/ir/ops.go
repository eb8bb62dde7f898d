package ir

import (
	"errors"
	"fmt"
	"math"
)

// Op identifies a unary or binary operator.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpBitAnd
	OpNeg
	OpNot
)

var opSymbols = [...]string{
	OpAdd:    "+",
	OpSub:    "-",
	OpMul:    "*",
	OpDiv:    "/",
	OpMod:    "%",
	OpLt:     "<",
	OpLe:     "<=",
	OpGt:     ">",
	OpGe:     ">=",
	OpEq:     "==",
	OpNe:     "!=",
	OpAnd:    "&&",
	OpOr:     "||",
	OpBitAnd: "&",
	OpNeg:    "-",
	OpNot:    "!",
}

// Symbol returns the Go operator token.
func (o Op) Symbol() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return "?"
}

func (o Op) String() string { return o.Symbol() }

// Commutative reports whether operand order does not matter for identities.
func (o Op) Commutative() bool {
	return o == OpAdd || o == OpMul || o == OpEq || o == OpNe || o == OpAnd || o == OpOr || o == OpBitAnd
}

// IsComparison reports whether o yields a bool from two ordered operands.
func (o Op) IsComparison() bool {
	return o >= OpLt && o <= OpNe
}

// ParseBinaryOp maps a Go operator token to a binary Op.
func ParseBinaryOp(tok string) (Op, bool) {
	for i, s := range opSymbols[:OpNeg] {
		if s == tok {
			return Op(i), true
		}
	}
	return 0, false
}

// ErrDivideByZero is returned when integer division by zero is folded.
var ErrDivideByZero = errors.New("integer divide by zero")

// BinaryResult computes the result type of l op r.
func BinaryResult(op Op, l, r Type) (Type, error) {
	switch op {
	case OpAdd, OpSub:
		if l == r && (l.IsNumeric() || l.IsVector()) {
			return l, nil
		}
	case OpMul:
		if l == r && l.IsNumeric() {
			return l, nil
		}
		if l.IsVector() && r == TFloat {
			return l, nil
		}
		if l == TFloat && r.IsVector() {
			return r, nil
		}
	case OpDiv:
		if l == r && l.IsNumeric() {
			return l, nil
		}
		if l.IsVector() && r == TFloat {
			return l, nil
		}
	case OpMod:
		if l == r && l.IsNumeric() {
			return l, nil
		}
	case OpLt, OpLe, OpGt, OpGe:
		if l == r && l.IsNumeric() {
			return TBool, nil
		}
	case OpEq, OpNe:
		if l == r && l != TVoid {
			return TBool, nil
		}
	case OpAnd, OpOr:
		if l == TBool && r == TBool {
			return TBool, nil
		}
	case OpBitAnd:
		if l == TInt && r == TInt {
			return TInt, nil
		}
	}
	return TVoid, &TypeError{Op: op.Symbol(), Got: []Type{l, r}}
}

// UnaryResult computes the result type of op x.
func UnaryResult(op Op, x Type) (Type, error) {
	switch op {
	case OpNeg:
		if x.IsNumeric() || x.IsVector() {
			return x, nil
		}
	case OpNot:
		if x == TBool {
			return TBool, nil
		}
	}
	return TVoid, &TypeError{Op: op.Symbol(), Got: []Type{x}}
}

// EvalBinary applies op to two run-time values. This is the single
// definition of operator semantics shared by folding and evaluation.
func EvalBinary(op Op, l, r any) (any, error) {
	switch a := l.(type) {
	case float64:
		switch b := r.(type) {
		case float64:
			return floatOp(op, a, b)
		case Vec2:
			if op == OpMul {
				return Vec2{a * b.X, a * b.Y}, nil
			}
		case Vec3:
			if op == OpMul {
				return Vec3{a * b.X, a * b.Y, a * b.Z}, nil
			}
		}
	case float32:
		if b, ok := r.(float32); ok {
			v, err := floatOp(op, float64(a), float64(b))
			if f, isF := v.(float64); isF {
				return float32(f), err
			}
			return v, err
		}
	case int64:
		if b, ok := r.(int64); ok {
			return intOp(op, a, b)
		}
	case bool:
		if b, ok := r.(bool); ok {
			switch op {
			case OpAnd:
				return a && b, nil
			case OpOr:
				return a || b, nil
			case OpEq:
				return a == b, nil
			case OpNe:
				return a != b, nil
			}
		}
	case Vec2:
		switch b := r.(type) {
		case Vec2:
			switch op {
			case OpAdd:
				return Vec2{a.X + b.X, a.Y + b.Y}, nil
			case OpSub:
				return Vec2{a.X - b.X, a.Y - b.Y}, nil
			case OpEq:
				return a == b, nil
			case OpNe:
				return a != b, nil
			}
		case float64:
			switch op {
			case OpMul:
				return Vec2{a.X * b, a.Y * b}, nil
			case OpDiv:
				return Vec2{a.X / b, a.Y / b}, nil
			}
		}
	case Vec3:
		switch b := r.(type) {
		case Vec3:
			switch op {
			case OpAdd:
				return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}, nil
			case OpSub:
				return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}, nil
			case OpEq:
				return a == b, nil
			case OpNe:
				return a != b, nil
			}
		case float64:
			switch op {
			case OpMul:
				return Vec3{a.X * b, a.Y * b, a.Z * b}, nil
			case OpDiv:
				return Vec3{a.X / b, a.Y / b, a.Z / b}, nil
			}
		}
	case V2RV2:
		if b, ok := r.(V2RV2); ok {
			switch op {
			case OpEq:
				return a == b, nil
			case OpNe:
				return a != b, nil
			}
		}
	}
	return nil, fmt.Errorf("operator %s not defined on %T and %T", op, l, r)
}

func floatOp(op Op, a, b float64) (any, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		return a / b, nil
	case OpMod:
		return math.Mod(a, b), nil
	case OpLt:
		return a < b, nil
	case OpLe:
		return a <= b, nil
	case OpGt:
		return a > b, nil
	case OpGe:
		return a >= b, nil
	case OpEq:
		return a == b, nil
	case OpNe:
		return a != b, nil
	}
	return nil, fmt.Errorf("operator %s not defined on floats", op)
}

func intOp(op Op, a, b int64) (any, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return nil, ErrDivideByZero
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return nil, ErrDivideByZero
		}
		return a % b, nil
	case OpBitAnd:
		return a & b, nil
	case OpLt:
		return a < b, nil
	case OpLe:
		return a <= b, nil
	case OpGt:
		return a > b, nil
	case OpGe:
		return a >= b, nil
	case OpEq:
		return a == b, nil
	case OpNe:
		return a != b, nil
	}
	return nil, fmt.Errorf("operator %s not defined on ints", op)
}

// EvalUnary applies a unary operator to a run-time value.
func EvalUnary(op Op, x any) (any, error) {
	switch op {
	case OpNeg:
		switch v := x.(type) {
		case float64:
			return -v, nil
		case float32:
			return -v, nil
		case int64:
			return -v, nil
		case Vec2:
			return Vec2{-v.X, -v.Y}, nil
		case Vec3:
			return Vec3{-v.X, -v.Y, -v.Z}, nil
		}
	case OpNot:
		if v, ok := x.(bool); ok {
			return !v, nil
		}
	}
	return nil, fmt.Errorf("operator %s not defined on %T", op, x)
}

// EvalConvert converts a numeric run-time value to t using Go conversion rules.
func EvalConvert(x any, t Type) (any, error) {
	var f float64
	var i int64
	isInt := false
	switch v := x.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		i, isInt = v, true
	default:
		return nil, fmt.Errorf("cannot convert %T to %s", x, t)
	}
	switch t {
	case TFloat:
		if isInt {
			return float64(i), nil
		}
		return f, nil
	case TFloat32:
		if isInt {
			return float32(i), nil
		}
		return float32(f), nil
	case TInt:
		if isInt {
			return i, nil
		}
		return int64(f), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", x, t)
}
