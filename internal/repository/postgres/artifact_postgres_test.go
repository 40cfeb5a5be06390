package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"docflow/internal/model"
	"docflow/internal/repository"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestArtifactPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewArtifactPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()
	a := &model.Artifact{
		ID:         "art-1",
		BatchID:    "batch-1",
		Filename:   "acme_CE-1.pdf",
		Size:       2048,
		StorageKey: "artifacts/art-1.pdf",
		CreatedBy:  "user-1",
		CreatedAt:  now,
	}

	t.Run("create", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO artifacts").
			WithArgs(a.ID, a.BatchID, a.Filename, a.Size, a.StorageKey, a.CreatedBy, a.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Create(ctx, a))
	})

	t.Run("find missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM artifacts WHERE id = $1")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		got, err := repo.FindByID(ctx, "nope")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("list newest first", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "batch_id", "filename", "size", "storage_key", "created_by", "created_at"}).
				AddRow("art-2", "batch-2", "b.pdf", 10, "artifacts/art-2.pdf", "user-1", now).
				AddRow("art-1", "batch-1", "a.pdf", 10, "artifacts/art-1.pdf", "user-1", now.Add(-time.Hour)))

		items, err := repo.List(ctx)

		assert.NoError(t, err)
		if assert.Len(t, items, 2) {
			assert.Equal(t, "art-2", items[0].ID)
		}
	})

	t.Run("count", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM artifacts")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		n, err := repo.Count(ctx)

		assert.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewAuditPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("append", func(t *testing.T) {
		e := &model.AuditEntry{ID: "a1", UserID: "u1", UserEmail: "ana@example.com", Action: "CREATE_BATCH", Details: "batch-1", Timestamp: now}
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(e.ID, e.UserID, e.UserEmail, e.Action, e.Details, e.Timestamp).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Append(ctx, e))
	})

	t.Run("list applies limit", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1")).
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "user_email", "action", "details", "ts"}).
				AddRow("a2", "u1", "ana@example.com", "DELETE_BATCH", "batch-1", now).
				AddRow("a1", "u1", "ana@example.com", "CREATE_BATCH", "batch-1", now.Add(-time.Minute)))

		items, err := repo.List(ctx, 2)

		assert.NoError(t, err)
		if assert.Len(t, items, 2) {
			assert.Equal(t, "DELETE_BATCH", items[0].Action)
		}
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
