package ir

// Value is the set of Go types that have an IR type.
type Value interface {
	bool | int64 | float32 | float64 | Vec2 | Vec3 | V2RV2
}

// TypeOf returns the IR type of T.
func TypeOf[T Value]() Type {
	var zero T
	t, _ := TypeOfValue(zero)
	return t
}

// Ex is the typed view of a node. The zero Ex holds no node.
type Ex[T Value] struct {
	n Node
}

// Box returns the typed view of n. It fails with *TypeError when the node's
// static type is not T.
func Box[T Value](n Node) (Ex[T], error) {
	want := TypeOf[T]()
	if n == nil {
		return Ex[T]{}, &TypeError{Op: "box " + want.String(), Message: "nil node"}
	}
	if n.Type() != want {
		return Ex[T]{}, &TypeError{Op: "box " + want.String(), Got: []Type{n.Type()}}
	}
	return Ex[T]{n: n}, nil
}

// MustBox is like Box but panics with *TypeError.
func MustBox[T Value](n Node) Ex[T] {
	e, err := Box[T](n)
	if err != nil {
		panic(err)
	}
	return e
}

// Of builds a typed constant.
func Of[T Value](v T) Ex[T] {
	return Ex[T]{n: Lit(v)}
}

// Node unboxes the untyped node.
func (e Ex[T]) Node() Node { return e.n }

// Type is always TypeOf[T]().
func (e Ex[T]) Type() Type { return TypeOf[T]() }

// Valid reports whether e holds a node.
func (e Ex[T]) Valid() bool { return e.n != nil }
