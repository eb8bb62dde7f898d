package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RecordRun inserts a run with its files and functions in one transaction
// and returns it with Seq assigned. Recording the same run id twice is a
// no-op that returns the stored sequence number.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, run.ID).Scan(&existing)
	if err == nil {
		run.Seq = existing
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("record run: lookup %s: %w", run.ID, err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("record run: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, dir, package, batches)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Seq, run.Dir, run.Package, run.Batches); err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}

	for fpos, f := range run.Files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (run_id, file_id, kind, position)
			VALUES (?, ?, ?, ?)
		`, run.ID, f.ID, f.Kind, fpos); err != nil {
			return Run{}, fmt.Errorf("record file %s: %w", f.ID, err)
		}
		for pos, fn := range f.Functions {
			imports, err := marshalImports(fn.Imports)
			if err != nil {
				return Run{}, fmt.Errorf("record function %s: %w", fn.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO functions
				(run_id, file_id, position, name, sig, strategy, decl, batch, imports, broken)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				run.ID,
				f.ID,
				pos,
				fn.Name,
				fn.Sig,
				fn.Strategy,
				fn.Decl,
				fn.Batch,
				imports,
				fn.Broken,
			); err != nil {
				return Run{}, fmt.Errorf("record function %s: %w", fn.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return run, nil
}
