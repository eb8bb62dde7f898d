package mathlib

import (
	"math"
	"sync"

	"github.com/roach88/exprbake/internal/ir"
)

const (
	// TableBits is log2 of the sine table size.
	TableBits = 21
	// TableSize is the number of entries spanning one full turn.
	TableSize = 1 << TableBits
)

// Resolution is the phase step between adjacent table entries, in radians.
const Resolution = 2 * math.Pi / TableSize

var sineTable = sync.OnceValue(func() *ir.Table {
	values := make([]float64, TableSize)
	for i := range values {
		values[i] = math.Sin(float64(i) * Resolution)
	}
	return ir.NewTable("sine", "mathlib.SineTable()", ImportPath, values)
})

// SineTable returns the process-wide sine table. It is built on first use
// and never modified afterwards, so it is safe for concurrent readers.
func SineTable() *ir.Table { return sineTable() }

// TableSin evaluates sine through the table the same way rewritten formulas do.
func TableSin(a float64) float64 {
	t := SineTable()
	return t.At(int64(a*(TableSize/(2*math.Pi))) & t.Mask())
}

// TableCos evaluates cosine through the table.
func TableCos(a float64) float64 {
	t := SineTable()
	return t.At((int64(a*(TableSize/(2*math.Pi))) + TableSize/4) & t.Mask())
}
