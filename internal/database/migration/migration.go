package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id              TEXT        PRIMARY KEY,
  folder          TEXT        NOT NULL,
  filename        TEXT        NOT NULL,
  content_type    TEXT        NOT NULL,
  size            BIGINT      NOT NULL CHECK (size >= 0),
  content_hash    TEXT        NOT NULL,
  storage_key     TEXT        NOT NULL,
  status          TEXT        NOT NULL,
  status_message  TEXT        NOT NULL DEFAULT '',
  parent_id       TEXT        NULL,
  batch_id        TEXT        NULL,
  replaced_at     TIMESTAMPTZ NULL,
  uploaded_by     TEXT        NOT NULL DEFAULT '',
  counterparty    TEXT        NULL,
  amount          BIGINT      NULL,
  doc_date        TEXT        NULL,
  tax_id          TEXT        NULL,
  document_number TEXT        NULL,
  concept         TEXT        NULL,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_documents_folder_hash",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_folder_hash ON documents (folder, content_hash);`,
	},
	{
		Name: "create_index_documents_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);`,
	},
	{
		Name: "create_index_documents_batch_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_batch_id ON documents (batch_id);`,
	},
	{
		Name: "create_table_batches",
		SQL: `CREATE TABLE IF NOT EXISTS batches (
  id                 TEXT        PRIMARY KEY,
  document_ids       JSONB       NOT NULL DEFAULT '[]'::jsonb,
  status             TEXT        NOT NULL,
  artifact_id        TEXT        NULL,
  needs_regeneration BOOLEAN     NOT NULL DEFAULT false,
  created_by         TEXT        NOT NULL DEFAULT '',
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_artifacts",
		SQL: `CREATE TABLE IF NOT EXISTS artifacts (
  id          TEXT        PRIMARY KEY,
  batch_id    TEXT        NOT NULL,
  filename    TEXT        NOT NULL,
  size        BIGINT      NOT NULL CHECK (size >= 0),
  storage_key TEXT        NOT NULL UNIQUE,
  created_by  TEXT        NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_artifacts_batch_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_artifacts_batch_id ON artifacts (batch_id);`,
	},
	{
		Name: "create_table_audit_logs",
		SQL: `CREATE TABLE IF NOT EXISTS audit_logs (
  id         TEXT        PRIMARY KEY,
  user_id    TEXT        NOT NULL,
  user_email TEXT        NOT NULL DEFAULT '',
  action     TEXT        NOT NULL,
  details    TEXT        NOT NULL DEFAULT '',
  ts         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_audit_logs_ts",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_logs_ts ON audit_logs (ts DESC);`,
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"))
	log.Info("db_migration_check")

	var exists bool
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('public.documents') IS NOT NULL").Scan(&exists); err != nil {
		log.Error("db_migration_failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}
	if exists {
		log.Info("db_migration_skip", zap.String("reason", "schema already exists"))
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Debug("db_migration_step",
			zap.String("migration_step", step.Name),
			zap.Duration("step_duration", time.Since(stepStart)),
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	log.Info("db_migration_success", zap.Int("steps", len(steps)), zap.Duration("duration", time.Since(start)))
	return nil
}
