package eval

import "github.com/roach88/exprbake/internal/ir"

func (c *compiler) binary(n *ir.Binary) code {
	l, r := c.compile(n.L), c.compile(n.R)
	switch n.Op {
	case ir.OpAnd:
		return func(fr *frame) any { return l(fr).(bool) && r(fr).(bool) }
	case ir.OpOr:
		return func(fr *frame) any { return l(fr).(bool) || r(fr).(bool) }
	}
	if n.L.Type() == ir.TFloat && n.R.Type() == ir.TFloat {
		if f := floatBinary(n.Op, l, r); f != nil {
			return f
		}
	}
	op := n.Op
	return func(fr *frame) any {
		a := l(fr)
		v, err := ir.EvalBinary(op, a, r(fr))
		if err != nil {
			panic(err)
		}
		return v
	}
}

// floatBinary specializes the hot float64 operators.
func floatBinary(op ir.Op, l, r code) code {
	switch op {
	case ir.OpAdd:
		return func(fr *frame) any { return l(fr).(float64) + r(fr).(float64) }
	case ir.OpSub:
		return func(fr *frame) any { return l(fr).(float64) - r(fr).(float64) }
	case ir.OpMul:
		return func(fr *frame) any { return l(fr).(float64) * r(fr).(float64) }
	case ir.OpDiv:
		return func(fr *frame) any { return l(fr).(float64) / r(fr).(float64) }
	case ir.OpLt:
		return func(fr *frame) any { return l(fr).(float64) < r(fr).(float64) }
	case ir.OpGt:
		return func(fr *frame) any { return l(fr).(float64) > r(fr).(float64) }
	}
	return nil
}

func (c *compiler) convert(n *ir.Convert) code {
	x, t := c.compile(n.X), n.T
	if n.X.Type() == ir.TFloat && t == ir.TInt {
		return func(fr *frame) any { return int64(x(fr).(float64)) }
	}
	return func(fr *frame) any {
		v, err := ir.EvalConvert(x(fr), t)
		if err != nil {
			panic(err)
		}
		return v
	}
}
