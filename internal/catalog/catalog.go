// Package catalog persists per-tenant document provenance in PostgreSQL.
// It is the row store behind the service's list/get/delete surface; the
// index segments themselves never depend on it.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	apperrors "github.com/ProgrammerXX1/plagio/pkg/errors"
)

// DocRow is one catalog record.
type DocRow struct {
	OrgID        string `json:"org_id"`
	DocID        string `json:"doc_id"`
	ExternalID   string `json:"external_id"`
	SourcePath   string `json:"source_path"`
	SourceName   string `json:"source_name"`
	StoredPath   string `json:"stored_path"`
	Preview      string `json:"preview"`
	CreatedAtUTC string `json:"created_at_utc"`
	Deleted      bool   `json:"deleted"`
	DeletedAtUTC string `json:"deleted_at_utc,omitempty"`
	LastSegment  string `json:"last_segment,omitempty"`
}

// Store wraps the documents table. A nil *Store is valid and turns every
// write into a no-op and every read into an empty result, so the engine
// runs without a database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			org_id         TEXT NOT NULL,
			doc_id         TEXT NOT NULL,
			external_id    TEXT NOT NULL,
			source_path    TEXT,
			source_name    TEXT,
			stored_path    TEXT,
			preview        TEXT,
			created_at_utc TEXT,
			deleted        BOOLEAN DEFAULT FALSE,
			deleted_at_utc TEXT,
			last_segment   TEXT,
			PRIMARY KEY (org_id, doc_id)
		);
		CREATE INDEX IF NOT EXISTS idx_docs_org_external ON documents (org_id, external_id);
		CREATE INDEX IF NOT EXISTS idx_docs_org_deleted  ON documents (org_id, deleted);
	`)
	if err != nil {
		return fmt.Errorf("creating documents schema: %w", err)
	}
	return nil
}

const upsertSQL = `
	INSERT INTO documents (org_id, doc_id, external_id, source_path, source_name,
		stored_path, preview, created_at_utc, deleted, deleted_at_utc, last_segment)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (org_id, doc_id) DO UPDATE SET
		external_id    = EXCLUDED.external_id,
		source_path    = EXCLUDED.source_path,
		source_name    = EXCLUDED.source_name,
		stored_path    = EXCLUDED.stored_path,
		preview        = EXCLUDED.preview,
		created_at_utc = EXCLUDED.created_at_utc,
		deleted        = EXCLUDED.deleted,
		deleted_at_utc = EXCLUDED.deleted_at_utc,
		last_segment   = EXCLUDED.last_segment`

// Upsert inserts or replaces one document row.
func (s *Store) Upsert(ctx context.Context, d DocRow) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, upsertSQL,
		d.OrgID, d.DocID, d.ExternalID, d.SourcePath, d.SourceName,
		d.StoredPath, d.Preview, d.CreatedAtUTC, d.Deleted, d.DeletedAtUTC, d.LastSegment)
	if err != nil {
		return fmt.Errorf("upserting document %s/%s: %w", d.OrgID, d.DocID, err)
	}
	return nil
}

// UpsertBulk replaces a batch of rows inside one transaction.
func (s *Store) UpsertBulk(ctx context.Context, docs []DocRow) error {
	if s == nil || len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bulk upsert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing bulk upsert: %w", err)
	}
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx,
			d.OrgID, d.DocID, d.ExternalID, d.SourcePath, d.SourceName,
			d.StoredPath, d.Preview, d.CreatedAtUTC, d.Deleted, d.DeletedAtUTC, d.LastSegment); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("bulk upserting document %s/%s: %w", d.OrgID, d.DocID, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bulk upsert: %w", err)
	}
	return nil
}

const selectCols = `org_id, doc_id, external_id,
	COALESCE(source_path, ''), COALESCE(source_name, ''), COALESCE(stored_path, ''),
	COALESCE(preview, ''), COALESCE(created_at_utc, ''), deleted,
	COALESCE(deleted_at_utc, ''), COALESCE(last_segment, '')`

func scanRow(scan func(...any) error) (DocRow, error) {
	var d DocRow
	err := scan(&d.OrgID, &d.DocID, &d.ExternalID, &d.SourcePath, &d.SourceName,
		&d.StoredPath, &d.Preview, &d.CreatedAtUTC, &d.Deleted, &d.DeletedAtUTC, &d.LastSegment)
	return d, err
}

// GetByDocOrExternal looks a document up by its doc_id first, then by its
// external key.
func (s *Store) GetByDocOrExternal(ctx context.Context, orgID, key string) (DocRow, error) {
	if s == nil {
		return DocRow{}, apperrors.ErrDocumentNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM documents
		 WHERE org_id = $1 AND (doc_id = $2 OR external_id = $2)
		 ORDER BY (doc_id = $2) DESC LIMIT 1`, orgID, key)
	d, err := scanRow(row.Scan)
	if err == sql.ErrNoRows {
		return DocRow{}, fmt.Errorf("%w: %s/%s", apperrors.ErrDocumentNotFound, orgID, key)
	}
	if err != nil {
		return DocRow{}, fmt.Errorf("querying document %s/%s: %w", orgID, key, err)
	}
	return d, nil
}

// List returns the org's documents, newest first.
func (s *Store) List(ctx context.Context, orgID string, limit, offset int) ([]DocRow, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM documents
		 WHERE org_id = $1 ORDER BY created_at_utc DESC, doc_id
		 LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents for %s: %w", orgID, err)
	}
	defer rows.Close()

	var out []DocRow
	for rows.Next() {
		d, err := scanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents for %s: %w", orgID, err)
	}
	return out, nil
}

// MarkDeleted flags a document (found by doc_id or external key) as
// deleted.
func (s *Store) MarkDeleted(ctx context.Context, orgID, key, deletedAtUTC string) error {
	if s == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET deleted = TRUE, deleted_at_utc = $3
		 WHERE org_id = $1 AND (doc_id = $2 OR external_id = $2)`,
		orgID, key, deletedAtUTC)
	if err != nil {
		return fmt.Errorf("marking document %s/%s deleted: %w", orgID, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("delete matched no catalog rows", "org_id", orgID, "key", key)
	}
	return nil
}

// UpdateLastSegment stamps the segment a batch of documents was sealed
// into.
func (s *Store) UpdateLastSegment(ctx context.Context, orgID string, docIDs []string, seg string) error {
	if s == nil || len(docIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning last-segment update: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`UPDATE documents SET last_segment = $3 WHERE org_id = $1 AND doc_id = $2`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing last-segment update: %w", err)
	}
	for _, id := range docIDs {
		if _, err := stmt.ExecContext(ctx, orgID, id, seg); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("updating last segment for %s/%s: %w", orgID, id, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing last-segment update: %w", err)
	}
	return nil
}
