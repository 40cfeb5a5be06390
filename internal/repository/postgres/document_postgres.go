package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"docflow/internal/model"
	"docflow/internal/repository"
)

const documentColumns = `id, folder, filename, content_type, size, content_hash, storage_key, status, status_message,
		parent_id, batch_id, replaced_at, uploaded_by, counterparty, amount, doc_date, tax_id, document_number, concept,
		created_at, updated_at`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.Folder,
		&d.Filename,
		&d.ContentType,
		&d.Size,
		&d.ContentHash,
		&d.StorageKey,
		&d.Status,
		&d.StatusMessage,
		&d.ParentID,
		&d.BatchID,
		&d.ReplacedAt,
		&d.UploadedBy,
		&d.Counterparty,
		&d.Amount,
		&d.Date,
		&d.TaxID,
		&d.DocumentNumber,
		&d.Concept,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	q := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Folder,
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.ContentHash,
		doc.StorageKey,
		doc.Status,
		doc.StatusMessage,
		doc.ParentID,
		doc.BatchID,
		doc.ReplacedAt,
		doc.UploadedBy,
		doc.Counterparty,
		doc.Amount,
		doc.Date,
		doc.TaxID,
		doc.DocumentNumber,
		doc.Concept,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	stored, err := scanDocument(row)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", repository.ErrDuplicate, doc.Folder)
	}
	return stored, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

// FindByHash fetches the document of a folder carrying the given content hash.
func (r *DocumentPostgres) FindByHash(ctx context.Context, folder model.Folder, hash string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE folder = $1 AND content_hash = $2 LIMIT 1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, folder, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

// buildFilter renders the WHERE clause and its arguments for f.
func buildFilter(f repository.DocumentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Folder != "" {
		args = append(args, f.Folder)
		conds = append(conds, fmt.Sprintf("folder = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			args = append(args, s)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Unbatched {
		conds = append(conds, "batch_id IS NULL")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns documents matching the filter ordered by creation time.
func (r *DocumentPostgres) List(ctx context.Context, f repository.DocumentFilter) ([]model.Document, error) {
	where, args := buildFilter(f)
	q := `SELECT ` + documentColumns + ` FROM documents` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the number of rows matching the filter.
func (r *DocumentPostgres) Count(ctx context.Context, f repository.DocumentFilter) (int, error) {
	where, args := buildFilter(f)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CountByStatus groups document counts by status.
func (r *DocumentPostgres) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Status]int)
	for rows.Next() {
		var (
			s model.Status
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

// Update overwrites the mutable columns of a document.
func (r *DocumentPostgres) Update(ctx context.Context, doc *model.Document) error {
	const q = `
		UPDATE documents SET
			filename = $2, content_type = $3, size = $4, content_hash = $5, storage_key = $6,
			status = $7, status_message = $8, batch_id = $9, replaced_at = $10,
			counterparty = $11, amount = $12, doc_date = $13, tax_id = $14, document_number = $15, concept = $16,
			updated_at = $17
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q,
		doc.ID,
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.ContentHash,
		doc.StorageKey,
		doc.Status,
		doc.StatusMessage,
		doc.BatchID,
		doc.ReplacedAt,
		doc.Counterparty,
		doc.Amount,
		doc.Date,
		doc.TaxID,
		doc.DocumentNumber,
		doc.Concept,
		doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, doc.Folder)
		}
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

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}
