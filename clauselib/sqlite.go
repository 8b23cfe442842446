package clauselib

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veritract/veritract/embedding"
)

// Schema is the clause library table. Embeddings are stored as little-endian
// float32 blobs next to the text they were computed from.
const Schema = `
CREATE TABLE IF NOT EXISTS library_clauses (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	text          TEXT NOT NULL,
	clause_type   TEXT NOT NULL,
	category      TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	risk_level    TEXT NOT NULL DEFAULT 'medium',
	preferred     TEXT NOT NULL DEFAULT '',
	fallback      TEXT NOT NULL DEFAULT '',
	unacceptable  TEXT NOT NULL DEFAULT '',
	unacceptable_terms TEXT NOT NULL DEFAULT '',
	embedding     BLOB
);
CREATE INDEX IF NOT EXISTS idx_library_clauses_category ON library_clauses(category);
`

// SQLiteSource reads and writes library clauses in a SQLite database.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource wraps an open database. The caller is responsible for
// applying Schema (dbopen.WithSchema does this at open time).
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// List implements Source.
func (s *SQLiteSource) List(ctx context.Context) ([]Clause, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, text, clause_type, category, jurisdiction, risk_level,
		       preferred, fallback, unacceptable, unacceptable_terms, embedding
		FROM library_clauses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list library clauses: %w", err)
	}
	defer rows.Close()

	var out []Clause
	for rows.Next() {
		var c Clause
		var terms string
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Title, &c.Text, &c.ClauseType, &c.Category,
			&c.Jurisdiction, &c.RiskLevel,
			&c.Playbook.Preferred, &c.Playbook.Fallback, &c.Playbook.Unacceptable,
			&terms, &blob); err != nil {
			return nil, fmt.Errorf("scan library clause: %w", err)
		}
		if terms != "" {
			c.Playbook.UnacceptableTerms = strings.Split(terms, "\n")
		}
		if len(blob) > 0 {
			c.Embedding = embedding.DeserializeVector(blob)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a clause, embedding included.
func (s *SQLiteSource) Upsert(ctx context.Context, c Clause) error {
	var blob []byte
	if len(c.Embedding) > 0 {
		blob = embedding.SerializeVector(c.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_clauses
			(id, title, text, clause_type, category, jurisdiction, risk_level,
			 preferred, fallback, unacceptable, unacceptable_terms, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			clause_type = excluded.clause_type,
			category = excluded.category,
			jurisdiction = excluded.jurisdiction,
			risk_level = excluded.risk_level,
			preferred = excluded.preferred,
			fallback = excluded.fallback,
			unacceptable = excluded.unacceptable,
			unacceptable_terms = excluded.unacceptable_terms,
			embedding = excluded.embedding`,
		c.ID, c.Title, c.Text, c.ClauseType, c.Category, c.Jurisdiction, c.RiskLevel,
		c.Playbook.Preferred, c.Playbook.Fallback, c.Playbook.Unacceptable,
		strings.Join(c.Playbook.UnacceptableTerms, "\n"), blob)
	if err != nil {
		return fmt.Errorf("upsert library clause %s: %w", c.ID, err)
	}
	return nil
}

// SaveEmbedding persists a computed vector for an existing clause.
func (s *SQLiteSource) SaveEmbedding(ctx context.Context, id string, vec []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE library_clauses SET embedding = ? WHERE id = ?`,
		embedding.SerializeVector(vec), id)
	if err != nil {
		return fmt.Errorf("save embedding for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save embedding for %s: clause not found", id)
	}
	return nil
}

// Import loads an authored library into the database, replacing entries with
// matching ids. Embeddings are computed for entries that lack one.
func (s *SQLiteSource) Import(ctx context.Context, emb embedding.Embedder, clauses []Clause) error {
	if _, err := EnsureEmbeddings(ctx, emb, clauses); err != nil {
		return err
	}
	for _, c := range clauses {
		if err := s.Upsert(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
