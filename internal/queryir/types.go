package queryir

// Field names a ledger column a predicate may test.
type Field string

const (
	FieldRun      Field = "run"
	FieldFile     Field = "file"
	FieldKind     Field = "kind"
	FieldName     Field = "name"
	FieldSig      Field = "sig"
	FieldStrategy Field = "strategy"
	FieldDecl     Field = "decl"
	FieldBatch    Field = "batch"
	FieldBroken   Field = "broken"
)

// Fields lists every field in display order.
var Fields = []Field{
	FieldRun, FieldFile, FieldKind, FieldName, FieldSig,
	FieldStrategy, FieldDecl, FieldBatch, FieldBroken,
}

// Known reports whether f is one of Fields.
func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// Query is a sealed ledger query.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter condition.
type Predicate interface {
	predicateNode()
}

// Select lists exported functions matching Filter, ordered by run then
// file then position. A nil Filter matches every function.
//
// With Latest set only the most recently recorded run is searched.
type Select struct {
	Filter Predicate
	Latest bool
}

func (Select) queryNode() {}

// Equals holds when the field equals Value exactly.
type Equals struct {
	Field Field
	Value string
}

func (Equals) predicateNode() {}

// Prefix holds when the field starts with Value.
type Prefix struct {
	Field Field
	Value string
}

func (Prefix) predicateNode() {}

// And holds when every predicate holds. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
