package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/exprbake/internal/queryir"
	"github.com/roach88/exprbake/internal/querysql"
)

// Runs lists recorded runs without their files, oldest first.
//
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, dir, package, batches
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Seq, &r.Dir, &r.Package, &r.Batches); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run with its files and functions in recorded order.
// Returns ErrRunNotFound for an unknown id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, dir, package, batches FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Seq, &r.Dir, &r.Package, &r.Batches)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	files, err := s.readFiles(ctx, id)
	if err != nil {
		return Run{}, err
	}
	r.Files = files
	return r, nil
}

// LatestRun returns the most recently recorded run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return s.ReadRun(ctx, id)
}

func (s *Store) readFiles(ctx context.Context, runID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, kind FROM files
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Kind); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	for i := range files {
		fns, err := s.readFunctions(ctx, runID, files[i].ID)
		if err != nil {
			return nil, err
		}
		files[i].Functions = fns
	}
	return files, nil
}

func (s *Store) readFunctions(ctx context.Context, runID, fileID string) ([]Function, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, sig, strategy, decl, batch, imports, broken
		FROM functions
		WHERE run_id = ? AND file_id = ?
		ORDER BY position ASC
	`, runID, fileID)
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	defer rows.Close()

	fns := []Function{}
	for rows.Next() {
		var fn Function
		var imports string
		if err := rows.Scan(&fn.Name, &fn.Sig, &fn.Strategy, &fn.Decl, &fn.Batch, &imports, &fn.Broken); err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		if fn.Imports, err = unmarshalImports(imports); err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate functions: %w", err)
	}
	return fns, nil
}

// Match is one exported function found by FindFunctions.
type Match struct {
	RunID  string `json:"run_id"`
	Seq    int64  `json:"seq"`
	FileID string `json:"file_id"`
	Kind   string `json:"kind"`
	Function
}

// FindFunctions returns the functions matching q across recorded runs,
// ordered by run then file then position.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) FindFunctions(ctx context.Context, q queryir.Query) ([]Match, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("find functions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find functions: %w", err)
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.RunID, &m.Seq, &m.FileID, &m.Kind,
			&m.Name, &m.Sig, &m.Strategy, &m.Decl, &m.Batch, &m.Broken); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}
