// Package queryir describes queries over the export ledger.
//
// A query selects exported functions across recorded runs. Filters name
// ledger columns through a closed set of fields, so a query can be checked
// before any backend sees it:
//
//	[history --where] → [Query IR] → [querysql] → SQLite
//
// Query and Predicate are sealed: only this package implements them, and
// backends switch over the concrete types exhaustively.
//
// # Fields
//
//	run       run id
//	file      file id (kind-hash)
//	kind      file kind: script, import, string, site
//	name      generated function name
//	sig       signature, e.g. float(float,vec2)
//	strategy  static, inline or lazy
//	decl      declaration name, empty for anonymous functions
//	batch     batch source file
//	broken    printing failure, empty when the body printed
//
// # Text form
//
// Parse reads the filter syntax of the history command: comma-separated
// field=value terms, all of which must hold. A value ending in * matches
// by prefix.
//
//	strategy=lazy,decl=fa*
package queryir
