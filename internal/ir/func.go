package ir

import "fmt"

// Trig selects the lookup-table rewrite applicable to a library function.
type Trig uint8

const (
	TrigNone Trig = iota
	TrigSin
	TrigCos
	TrigCosSin
)

// Func describes a library function callable from formulas.
type Func struct {
	Lib     string // Go package name used in generated code, e.g. "math"
	Name    string // exported Go identifier, e.g. "Sin"
	Import  string // import path of Lib
	Op      string // library-independent operation name, e.g. "sin"
	Degrees bool   // angle arguments are in degrees
	Trig    Trig
	Params  []Type
	Ret     Type
	Pure    bool
	Impl    func(args []any) any
}

// GoName is the qualified Go identifier of the function.
func (f *Func) GoName() string { return f.Lib + "." + f.Name }

func (f *Func) String() string { return f.GoName() }

// Ctor describes a constructor of a value type.
type Ctor struct {
	Name   string // qualified Go function, e.g. "ir.V2"
	Import string
	Params []Type
	Ret    Type
	Pure   bool
	Impl   func(args []any) any
}

// Built-in value constructors.
var (
	CtorVec2 = &Ctor{
		Name: "ir.V2", Import: ImportPath, Params: []Type{TFloat, TFloat}, Ret: TVec2, Pure: true,
		Impl: func(a []any) any { return V2(a[0].(float64), a[1].(float64)) },
	}
	CtorVec3 = &Ctor{
		Name: "ir.V3", Import: ImportPath, Params: []Type{TFloat, TFloat, TFloat}, Ret: TVec3, Pure: true,
		Impl: func(a []any) any { return V3(a[0].(float64), a[1].(float64), a[2].(float64)) },
	}
	CtorV2RV2 = &Ctor{
		Name: "ir.RV2", Import: ImportPath, Params: []Type{TFloat, TFloat, TFloat, TFloat, TFloat}, Ret: TV2RV2, Pure: true,
		Impl: func(a []any) any {
			return RV2(a[0].(float64), a[1].(float64), a[2].(float64), a[3].(float64), a[4].(float64))
		},
	}
)

// Ctors lists the built-in constructors.
var Ctors = []*Ctor{CtorVec2, CtorVec3, CtorV2RV2}

// CtorByName finds a built-in constructor by its Go name.
func CtorByName(name string) (*Ctor, bool) {
	for _, c := range Ctors {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ImportPath is the import path of this package, used by generated code.
const ImportPath = "github.com/roach88/exprbake/internal/ir"

// MemberInfo describes a field or computed property of a value type.
type MemberInfo struct {
	Owner    Type
	Name     string
	T        Type
	Computed bool // a method call in Go, never folded as a plain field read
	Get      func(any) any
}

var members = []*MemberInfo{
	{Owner: TVec2, Name: "X", T: TFloat, Get: func(v any) any { return v.(Vec2).X }},
	{Owner: TVec2, Name: "Y", T: TFloat, Get: func(v any) any { return v.(Vec2).Y }},
	{Owner: TVec2, Name: "Mag", T: TFloat, Computed: true, Get: func(v any) any { return v.(Vec2).Mag() }},
	{Owner: TVec3, Name: "X", T: TFloat, Get: func(v any) any { return v.(Vec3).X }},
	{Owner: TVec3, Name: "Y", T: TFloat, Get: func(v any) any { return v.(Vec3).Y }},
	{Owner: TVec3, Name: "Z", T: TFloat, Get: func(v any) any { return v.(Vec3).Z }},
	{Owner: TVec3, Name: "Mag", T: TFloat, Computed: true, Get: func(v any) any { return v.(Vec3).Mag() }},
	{Owner: TV2RV2, Name: "NX", T: TFloat, Get: func(v any) any { return v.(V2RV2).NX }},
	{Owner: TV2RV2, Name: "NY", T: TFloat, Get: func(v any) any { return v.(V2RV2).NY }},
	{Owner: TV2RV2, Name: "RX", T: TFloat, Get: func(v any) any { return v.(V2RV2).RX }},
	{Owner: TV2RV2, Name: "RY", T: TFloat, Get: func(v any) any { return v.(V2RV2).RY }},
	{Owner: TV2RV2, Name: "Angle", T: TFloat, Get: func(v any) any { return v.(V2RV2).Angle }},
	{Owner: TV2RV2, Name: "Rotated", T: TVec2, Computed: true, Get: func(v any) any { return v.(V2RV2).Rotated() }},
}

// LookupMember finds a member of a value type. Names match case-sensitively
// against the Go field or method name.
func LookupMember(owner Type, name string) (*MemberInfo, bool) {
	for _, m := range members {
		if m.Owner == owner && m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Table is a read-only lookup table indexed by a masked integer.
type Table struct {
	Name     string
	Accessor string // Go expression yielding the table in generated code
	Import   string
	values   []float64
	mask     int64
}

// NewTable wraps values, whose length must be a power of two.
func NewTable(name, accessor, importPath string, values []float64) *Table {
	n := len(values)
	if n == 0 || n&(n-1) != 0 {
		panic(fmt.Sprintf("ir: table %s size %d is not a power of two", name, n))
	}
	return &Table{Name: name, Accessor: accessor, Import: importPath, values: values, mask: int64(n - 1)}
}

// Len is the number of entries.
func (t *Table) Len() int { return len(t.values) }

// Mask is Len()-1.
func (t *Table) Mask() int64 { return t.mask }

// At returns entry i modulo Len.
func (t *Table) At(i int64) float64 { return t.values[i&t.mask] }

// Lambda is a script-level function. Its implementation may be attached after
// references to it are built, which allows recursion.
type Lambda struct {
	Name   string
	Sig    Signature
	Static string // qualified Go function for host-bound static functions
	Import string
	impl   Callable
}

// SetImpl attaches the compiled implementation.
func (l *Lambda) SetImpl(c Callable) { l.impl = c }

// Impl returns the attached implementation, or nil.
func (l *Lambda) Impl() Callable { return l.impl }

// Invoke calls the attached implementation.
func (l *Lambda) Invoke(env *Env) any {
	if l.impl == nil {
		panic(fmt.Sprintf("ir: function %s called before it was compiled", l.Name))
	}
	return l.impl(env)
}
