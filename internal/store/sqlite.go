package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/otflow-ml/otflow/internal/graph"
	"github.com/otflow-ml/otflow/internal/solver"
)

const schema = `
CREATE TABLE IF NOT EXISTS couplings (
	source  TEXT NOT NULL,
	target  TEXT NOT NULL,
	kind    TEXT NOT NULL,
	rows    INTEGER NOT NULL,
	cols    INTEGER NOT NULL,
	rank    INTEGER NOT NULL,
	config  TEXT NOT NULL,
	output  TEXT,
	payload BLOB NOT NULL,
	PRIMARY KEY (source, target)
);`

// SQLite persists couplings in a SQLite database, one row per edge.
// Useful when couplings are reloaded selectively or shared between
// processes.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a coupling store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Save upserts every solved edge of the graph.
func (s *SQLite) Save(ctx context.Context, g *graph.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO couplings (source, target, kind, rows, cols, rank, config, output, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, target) DO UPDATE SET
			kind = excluded.kind, rows = excluded.rows, cols = excluded.cols,
			rank = excluded.rank, config = excluded.config,
			output = excluded.output, payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range g.Edges() {
		c, err := g.Coupling(p.Source, p.Target)
		if err != nil {
			continue // unsolved edges are not persisted
		}
		kind, cfg, err := g.EdgeDetail(p.Source, p.Target)
		if err != nil {
			return err
		}
		out, err := g.Output(p.Source, p.Target)
		if err != nil {
			return err
		}

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("store: marshal config: %w", err)
		}
		var outJSON []byte
		if out != nil {
			if outJSON, err = json.Marshal(out); err != nil {
				return fmt.Errorf("store: marshal output: %w", err)
			}
		}

		if _, err := stmt.ExecContext(ctx,
			p.Source, p.Target, kind.String(), c.Rows(), c.Cols(), c.Rank(),
			string(cfgJSON), nullableString(outJSON), encodeCoupling(c),
		); err != nil {
			return fmt.Errorf("store: upsert edge %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// Load installs every stored coupling whose edge exists in the graph.
// Rows without a matching edge are an error: the store is bound to one
// topology.
func (s *SQLite) Load(ctx context.Context, g *graph.Graph) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, target, rows, cols, rank, output, payload FROM couplings`)
	if err != nil {
		return fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec EdgeRecord
		var outJSON sql.NullString
		var payload []byte
		if err := rows.Scan(&rec.Source, &rec.Target, &rec.Rows, &rec.Cols, &rec.Rank,
			&outJSON, &payload); err != nil {
			return fmt.Errorf("store: scan: %w", err)
		}

		c, err := decodeCoupling(rec, payload)
		if err != nil {
			return err
		}
		var out *solver.Output
		if outJSON.Valid {
			out = &solver.Output{}
			if err := json.Unmarshal([]byte(outJSON.String), out); err != nil {
				return fmt.Errorf("store: decode output for %s→%s: %w", rec.Source, rec.Target, err)
			}
		}
		if err := g.SetCoupling(rec.Source, rec.Target, c, out); err != nil {
			return fmt.Errorf("store: restore edge %s→%s: %w", rec.Source, rec.Target, err)
		}
	}
	return rows.Err()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
