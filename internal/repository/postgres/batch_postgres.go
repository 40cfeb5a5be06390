package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"docflow/internal/model"
	"docflow/internal/repository"
)

const batchColumns = `id, document_ids, status, artifact_id, needs_regeneration, created_by, created_at, updated_at`

// BatchPostgres is a PostgreSQL implementation of repository.BatchRepository.
// Membership changes run in a single transaction together with the document rows they touch.
type BatchPostgres struct {
	db *sql.DB
}

// NewBatchPostgres creates a new BatchPostgres repository.
func NewBatchPostgres(db *sql.DB) *BatchPostgres {
	return &BatchPostgres{db: db}
}

var _ repository.BatchRepository = (*BatchPostgres)(nil)

func scanBatch(row rowScanner) (*model.Batch, error) {
	var (
		b   model.Batch
		ids []byte
	)
	if err := row.Scan(
		&b.ID,
		&ids,
		&b.Status,
		&b.ArtifactID,
		&b.NeedsRegeneration,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ids, &b.DocumentIDs); err != nil {
		return nil, fmt.Errorf("decode document_ids: %w", err)
	}
	return &b, nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (r *BatchPostgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func claimDocument(ctx context.Context, tx *sql.Tx, b *model.Batch, docID string) error {
	const q = `
		UPDATE documents SET status = $1, batch_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND batch_id IS NULL
	`
	res, err := tx.ExecContext(ctx, q, model.StatusBatched, b.ID, b.UpdatedAt, docID, model.StatusAnalyzed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrClaimConflict, docID)
	}
	return nil
}

func releaseDocument(ctx context.Context, tx *sql.Tx, b *model.Batch, docID string) error {
	const q = `
		UPDATE documents SET status = $1, batch_id = NULL, updated_at = $2
		WHERE id = $3 AND batch_id = $4
	`
	_, err := tx.ExecContext(ctx, q, model.StatusAnalyzed, b.UpdatedAt, docID, b.ID)
	return err
}

func updateBatch(ctx context.Context, tx *sql.Tx, b *model.Batch) error {
	ids, err := json.Marshal(b.DocumentIDs)
	if err != nil {
		return err
	}
	const q = `
		UPDATE batches SET document_ids = $2, status = $3, artifact_id = $4, needs_regeneration = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, q, b.ID, ids, b.Status, b.ArtifactID, b.NeedsRegeneration, b.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateClaiming inserts the batch and claims all of its documents atomically.
func (r *BatchPostgres) CreateClaiming(ctx context.Context, b *model.Batch) error {
	ids, err := json.Marshal(b.DocumentIDs)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			INSERT INTO batches (` + batchColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, q,
			b.ID, ids, b.Status, b.ArtifactID, b.NeedsRegeneration, b.CreatedBy, b.CreatedAt, b.UpdatedAt,
		); err != nil {
			return err
		}
		for _, id := range b.DocumentIDs {
			if err := claimDocument(ctx, tx, b, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Claim adds one document to an existing batch.
func (r *BatchPostgres) Claim(ctx context.Context, b *model.Batch, docID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := claimDocument(ctx, tx, b, docID); err != nil {
			return err
		}
		return updateBatch(ctx, tx, b)
	})
}

// Release removes one document from a batch and returns it to the free pool.
func (r *BatchPostgres) Release(ctx context.Context, b *model.Batch, docID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := releaseDocument(ctx, tx, b, docID); err != nil {
			return err
		}
		return updateBatch(ctx, tx, b)
	})
}

// DeleteReleasing deletes the batch row and releases every member.
func (r *BatchPostgres) DeleteReleasing(ctx context.Context, b *model.Batch) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		const q = `
			UPDATE documents SET status = $1, batch_id = NULL, updated_at = $2
			WHERE batch_id = $3
		`
		if _, err := tx.ExecContext(ctx, q, model.StatusAnalyzed, b.UpdatedAt, b.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, b.ID)
		return err
	})
}

// FindByID fetches a batch by its ID.
func (r *BatchPostgres) FindByID(ctx context.Context, id string) (*model.Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	b, err := scanBatch(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return b, err
}

// List returns all batches, newest first.
func (r *BatchPostgres) List(ctx context.Context) ([]model.Batch, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Update writes status, artifact and regeneration flag.
func (r *BatchPostgres) Update(ctx context.Context, b *model.Batch) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return updateBatch(ctx, tx, b)
	})
}

// Stats counts batches and stale batches.
func (r *BatchPostgres) Stats(ctx context.Context) (int, int, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE needs_regeneration) FROM batches`
	var total, stale int
	if err := r.db.QueryRowContext(ctx, q).Scan(&total, &stale); err != nil {
		return 0, 0, err
	}
	return total, stale, nil
}
