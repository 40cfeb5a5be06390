package postgres

import (
	"context"
	"database/sql"
	"errors"

	"docflow/internal/model"
	"docflow/internal/repository"
)

const artifactColumns = `id, batch_id, filename, size, storage_key, created_by, created_at`

// ArtifactPostgres is a PostgreSQL implementation of repository.ArtifactRepository.
type ArtifactPostgres struct {
	db *sql.DB
}

// NewArtifactPostgres creates a new ArtifactPostgres repository.
func NewArtifactPostgres(db *sql.DB) *ArtifactPostgres {
	return &ArtifactPostgres{db: db}
}

var _ repository.ArtifactRepository = (*ArtifactPostgres)(nil)

func scanArtifact(row rowScanner) (*model.Artifact, error) {
	var a model.Artifact
	if err := row.Scan(&a.ID, &a.BatchID, &a.Filename, &a.Size, &a.StorageKey, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ArtifactPostgres) Create(ctx context.Context, a *model.Artifact) error {
	q := `INSERT INTO artifacts (` + artifactColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, q, a.ID, a.BatchID, a.Filename, a.Size, a.StorageKey, a.CreatedBy, a.CreatedAt)
	return err
}

func (r *ArtifactPostgres) FindByID(ctx context.Context, id string) (*model.Artifact, error) {
	q := `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`
	a, err := scanArtifact(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return a, err
}

func (r *ArtifactPostgres) List(ctx context.Context) ([]model.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ArtifactPostgres) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n)
	return n, err
}

func (r *ArtifactPostgres) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	return err
}

// AuditPostgres is a PostgreSQL implementation of repository.AuditRepository.
type AuditPostgres struct {
	db *sql.DB
}

// NewAuditPostgres creates a new AuditPostgres repository.
func NewAuditPostgres(db *sql.DB) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ repository.AuditRepository = (*AuditPostgres)(nil)

func (r *AuditPostgres) Append(ctx context.Context, e *model.AuditEntry) error {
	const q = `
		INSERT INTO audit_logs (id, user_id, user_email, action, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.UserID, e.UserEmail, e.Action, e.Details, e.Timestamp)
	return err
}

func (r *AuditPostgres) List(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	const q = `
		SELECT id, user_id, user_email, action, details, ts
		FROM audit_logs
		ORDER BY ts DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
