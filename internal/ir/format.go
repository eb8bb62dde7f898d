package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders n as an S-expression. Two trees that format identically are
// structurally equal up to variable identity.
func Format(n Node) string {
	var sb strings.Builder
	formatNode(&sb, n)
	return sb.String()
}

// FormatValue renders an IR value compactly: floats in shortest form, ints
// with an "i" suffix, float32 with an "f" suffix.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32) + "f"
	case int64:
		return strconv.FormatInt(x, 10) + "i"
	case bool:
		return strconv.FormatBool(x)
	case Vec2:
		return "(vec2 " + FormatValue(x.X) + " " + FormatValue(x.Y) + ")"
	case Vec3:
		return "(vec3 " + FormatValue(x.X) + " " + FormatValue(x.Y) + " " + FormatValue(x.Z) + ")"
	case V2RV2:
		return fmt.Sprintf("(v2rv2 %s %s %s %s %s)", FormatValue(x.NX), FormatValue(x.NY),
			FormatValue(x.RX), FormatValue(x.RY), FormatValue(x.Angle))
	case *Named:
		return x.Name
	case struct{}:
		return "()"
	}
	return fmt.Sprintf("%v", v)
}

func formatNode(sb *strings.Builder, n Node) {
	list := func(head string, args ...Node) {
		sb.WriteByte('(')
		sb.WriteString(head)
		for _, a := range args {
			sb.WriteByte(' ')
			formatNode(sb, a)
		}
		sb.WriteByte(')')
	}
	switch n := n.(type) {
	case *Const:
		sb.WriteString(FormatValue(n.Val))
	case *Param:
		sb.WriteString("$" + n.Name)
	case *Var:
		sb.WriteString(n.Name)
	case *Hoisted:
		fmt.Fprintf(sb, "(hoisted %d)", n.Index)
	case *Binary:
		list(n.Op.Symbol(), n.L, n.R)
	case *Unary:
		if n.Op == OpNeg {
			list("neg", n.X)
		} else {
			list(n.Op.Symbol(), n.X)
		}
	case *Convert:
		list(n.T.String(), n.X)
	case *Cond:
		list("if", n.Test, n.Then, n.Else)
	case *Block:
		head := "do"
		if len(n.Vars) > 0 {
			names := make([]string, len(n.Vars))
			for i, v := range n.Vars {
				names[i] = v.Name
			}
			head += " [" + strings.Join(names, " ") + "]"
		}
		list(head, n.Stmts...)
	case *Assign:
		list("set "+n.Target.Name, n.Value)
	case *Loop:
		list("while", n.Cond, n.Body)
	case *Try:
		list("try", n.Body, n.Catch)
	case *Call:
		list(n.Fn.GoName(), n.Args...)
	case *New:
		list(n.Ctor.Name, n.Args...)
	case *Member:
		list("."+n.M.Name, n.X)
	case *Fetch:
		list("fetch "+n.Table.Name, n.Index)
	case *DynGet:
		list("get "+strconv.Quote(n.Key), n.Default)
	case *DynSet:
		list("put "+strconv.Quote(n.Key), n.Value)
	case *Apply:
		list("call "+n.Fn.Name, n.Args...)
	default:
		panic(unknownNode(n))
	}
}
