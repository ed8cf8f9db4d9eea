package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/autograder/internal/core/indexing"
	"github.com/jinford/autograder/internal/core/retrieval"
)

// VectorIndex は参考資料チャンクのベクトルインデックスを提供するPostgreSQL実装
// チャンクは課題単位でパーティションされ、検索は常にassignment_idでフィルタされる
type VectorIndex struct {
	pool *pgxpool.Pool
}

// NewVectorIndex は新しい VectorIndex を返す
func NewVectorIndex(pool *pgxpool.Pool) *VectorIndex {
	return &VectorIndex{pool: pool}
}

var (
	_ indexing.Index  = (*VectorIndex)(nil)
	_ retrieval.Index = (*VectorIndex)(nil)
)

// EnsureSchema はチャンクテーブルを冪等に初期化する
// 既存テーブルのベクトル次元がdimensionと一致しない場合は、
// サイレントな切り詰め/パディングではなく設定エラーとして失敗する
func (v *VectorIndex) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	existing, err := v.existingDimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		if existing != dimension {
			return fmt.Errorf("reference_chunks embedding dimension mismatch: table has %d, embedder produces %d (incompatible schema change)", existing, dimension)
		}
		return nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS reference_chunks (
			id UUID PRIMARY KEY,
			assignment_id BIGINT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_reference_chunks_assignment_id ON reference_chunks(assignment_id)`,
	}
	for _, stmt := range stmts {
		if _, err := v.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create reference_chunks schema: %w", err)
		}
	}

	return nil
}

// existingDimension は既存テーブルのベクトル次元を返す（未作成なら0）
// pgvectorはvector型のtypmodに次元をそのまま格納する
func (v *VectorIndex) existingDimension(ctx context.Context) (int, error) {
	var typmod int
	err := v.pool.QueryRow(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'reference_chunks' AND a.attname = 'embedding'
	`).Scan(&typmod)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to inspect reference_chunks schema: %w", err)
	}
	return typmod, nil
}

// IndexChunks はチャンクとベクトルを課題スコープでupsertし、書き込んだ件数を返す
func (v *VectorIndex) IndexChunks(ctx context.Context, assignmentID int64, chunks []string, vectors [][]float32, metadata map[string]any) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode chunk metadata: %w", err)
	}

	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, chunk := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reference_chunks (id, assignment_id, chunk_index, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), assignmentID, i, chunk, metadataJSON, pgvector.NewVector(vectors[i])); err != nil {
			return 0, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit chunk insert: %w", err)
	}

	return len(chunks), nil
}

// Search は課題スコープ内でコサイン類似度の上位topK件を返す
// 他課題のチャンクが結果に混入することは正当性違反として扱う
func (v *VectorIndex) Search(ctx context.Context, assignmentID int64, queryVector []float32, topK int) ([]*retrieval.Result, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT content, metadata, 1 - (embedding <=> $2) AS score
		FROM reference_chunks
		WHERE assignment_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, assignmentID, pgvector.NewVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	results := make([]*retrieval.Result, 0, topK)
	for rows.Next() {
		var (
			content      string
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&content, &metadataJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		var metadata map[string]any
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
			}
		}

		results = append(results, &retrieval.Result{
			Text:     content,
			Score:    score,
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return results, nil
}

// DeleteByAssignment は課題配下の全チャンクを削除する
// 該当チャンクがない課題の削除はno-op（冪等）
func (v *VectorIndex) DeleteByAssignment(ctx context.Context, assignmentID int64) error {
	if _, err := v.pool.Exec(ctx, `
		DELETE FROM reference_chunks WHERE assignment_id = $1
	`, assignmentID); err != nil {
		return fmt.Errorf("failed to delete assignment chunks: %w", err)
	}
	return nil
}
