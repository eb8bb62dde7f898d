// Package ir defines the typed expression tree that formulas are built from.
//
// Every other internal package imports ir; ir imports nothing internal.
// Nodes are a sealed set of pointer types (see Node) and are immutable once
// built, so passes rewrite by allocating and may memoize by pointer.
//
// The package also carries the value types formulas compute with (Vec2,
// Vec3, V2RV2), operator semantics shared by folding and evaluation, the
// run-time Env handed to compiled code, and the FileKey identity used to
// name baked files.
package ir
