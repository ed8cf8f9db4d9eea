package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements はリレーショナルスキーマ定義（すべて冪等）
// reference_chunksテーブルはEmbedding次元に依存するため、VectorIndex.EnsureSchemaで作成する
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		rubric JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS submissions (
		id BIGSERIAL PRIMARY KEY,
		assignment_id BIGINT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		extracted_text TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued'
			CHECK (status IN ('queued', 'grading', 'done', 'error')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_submissions_assignment_id ON submissions(assignment_id)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status)`,

	`CREATE TABLE IF NOT EXISTS grades (
		id BIGSERIAL PRIMARY KEY,
		submission_id BIGINT NOT NULL UNIQUE REFERENCES submissions(id) ON DELETE CASCADE,
		score INT NOT NULL,
		breakdown JSONB NOT NULL,
		feedback TEXT NOT NULL,
		citations JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS grading_jobs (
		id BIGSERIAL PRIMARY KEY,
		submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'running', 'done', 'failed')),
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_grading_jobs_status ON grading_jobs(status, enqueued_at)`,
}

// Migrate はリレーショナルスキーマを初期化します
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
