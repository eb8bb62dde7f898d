// Package querysql compiles ledger queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/exprbake/internal/queryir"
)

// Columns is the select list of every compiled query, in scan order.
const Columns = "f.run_id, r.seq, f.file_id, fi.kind, f.name, f.sig, f.strategy, f.decl, f.batch, f.broken"

const from = `FROM functions f
		JOIN files fi ON fi.run_id = f.run_id AND fi.file_id = f.file_id
		JOIN runs r ON r.id = f.run_id`

// Every query orders by recording sequence; ties never depend on wall time.
const orderBy = "ORDER BY r.seq ASC, fi.position ASC, f.position ASC"

var columns = map[queryir.Field]string{
	queryir.FieldRun:      "f.run_id",
	queryir.FieldFile:     "f.file_id",
	queryir.FieldKind:     "fi.kind",
	queryir.FieldName:     "f.name",
	queryir.FieldSig:      "f.sig",
	queryir.FieldStrategy: "f.strategy",
	queryir.FieldDecl:     "f.decl",
	queryir.FieldBatch:    "f.batch",
	queryir.FieldBroken:   "f.broken",
}

// Compile converts q to SQL and its parameters. Values are always bound
// as parameters, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	}

	var (
		where  []string
		params []any
	)
	if sel.Latest {
		where = append(where, "f.run_id = (SELECT id FROM runs ORDER BY seq DESC LIMIT 1)")
	}
	if sel.Filter != nil {
		cond, ps, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, cond)
		params = append(params, ps...)
	}

	sql := "SELECT " + Columns + " " + from
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql + " " + orderBy, params, nil
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return columns[pred.Field] + " = ?", []any{pred.Value}, nil
	case *queryir.Equals:
		return compilePredicate(*pred)
	case queryir.Prefix:
		return columns[pred.Field] + ` LIKE ? ESCAPE '\'`, []any{escapeLike(pred.Value) + "%"}, nil
	case *queryir.Prefix:
		return compilePredicate(*pred)
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, p := range and.Predicates {
		sql, ps, err := compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// escapeLike quotes LIKE wildcards so a prefix matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
