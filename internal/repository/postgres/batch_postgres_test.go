package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"docflow/internal/model"
	"docflow/internal/repository"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var batchColumnNames = []string{
	"id", "document_ids", "status", "artifact_id", "needs_regeneration", "created_by", "created_at", "updated_at",
}

func newTestBatch(ids ...string) *model.Batch {
	now := time.Now().UTC()
	return &model.Batch{
		ID:          "batch-1",
		DocumentIDs: ids,
		Status:      model.BatchCreated,
		CreatedBy:   "user-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

const claimSQL = "UPDATE documents SET status = $1, batch_id = $2, updated_at = $3"

func TestBatchPostgres_CreateClaiming(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBatchPostgres(db)
	ctx := context.Background()

	t.Run("claims every member", func(t *testing.T) {
		b := newTestBatch("d1", "d2")

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO batches").
			WithArgs(b.ID, []byte(`["d1","d2"]`), b.Status, nil, false, b.CreatedBy, b.CreatedAt, b.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(claimSQL)).
			WithArgs(model.StatusBatched, b.ID, b.UpdatedAt, "d1", model.StatusAnalyzed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(claimSQL)).
			WithArgs(model.StatusBatched, b.ID, b.UpdatedAt, "d2", model.StatusAnalyzed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.CreateClaiming(ctx, b))
	})

	t.Run("rolls back when a member is taken", func(t *testing.T) {
		b := newTestBatch("d1", "d2")

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO batches").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(claimSQL)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(claimSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CreateClaiming(ctx, b)

		assert.ErrorIs(t, err, repository.ErrClaimConflict)
		assert.Contains(t, err.Error(), "d2")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPostgres_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	b := newTestBatch("d1")
	b.NeedsRegeneration = true

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, batch_id = NULL")).
		WithArgs(model.StatusAnalyzed, b.UpdatedAt, "d2", b.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE batches SET").
		WithArgs(b.ID, []byte(`["d1"]`), b.Status, nil, true, b.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, NewBatchPostgres(db).Release(context.Background(), b, "d2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPostgres_DeleteReleasing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	b := newTestBatch("d1", "d2")

	t.Run("deleted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("WHERE batch_id = $3")).
			WithArgs(model.StatusAnalyzed, b.UpdatedAt, b.ID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM batches WHERE id = $1")).
			WithArgs(b.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, NewBatchPostgres(db).DeleteReleasing(context.Background(), b))
	})

	t.Run("release failure keeps the batch", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("WHERE batch_id = $3")).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		assert.Error(t, NewBatchPostgres(db).DeleteReleasing(context.Background(), b))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBatchPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("decodes ordered membership", func(t *testing.T) {
		artifact := "art-1"
		mock.ExpectQuery(regexp.QuoteMeta("FROM batches WHERE id = $1")).
			WithArgs("batch-1").
			WillReturnRows(sqlmock.NewRows(batchColumnNames).
				AddRow("batch-1", []byte(`["d3","d1","d2"]`), "ready", &artifact, false, "user-1", now, now))

		b, err := repo.FindByID(ctx, "batch-1")

		assert.NoError(t, err)
		if assert.NotNil(t, b) {
			assert.Equal(t, []string{"d3", "d1", "d2"}, b.DocumentIDs)
			assert.Equal(t, model.BatchReady, b.Status)
			assert.Equal(t, "art-1", *b.ArtifactID)
		}
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM batches WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(batchColumnNames))

		b, err := repo.FindByID(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, b)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPostgres_Stats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FILTER (WHERE needs_regeneration)")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "stale"}).AddRow(7, 2))

	total, stale, err := NewBatchPostgres(db).Stats(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Equal(t, 2, stale)
	assert.NoError(t, mock.ExpectationsWereMet())
}
