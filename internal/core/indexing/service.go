package indexing

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jinford/autograder/internal/core/indexing/chunker"
)

// maxEmbedBatchSize はEmbedding APIの1リクエストあたりの最大テキスト数
const maxEmbedBatchSize = 100

// IndexResult は参考資料インデックス化の結果を表す
type IndexResult struct {
	StorageKey  string
	TotalChunks int
}

// Service は参考資料のインデックス化ユースケースを提供する
// 書き込みパス: 抽出済みテキスト → Chunker → Embedder → Index
type Service struct {
	index     Index
	embedder  Embedder
	extractor Extractor
	store     ObjectStore
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type serviceOptions struct {
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithChunkWindow はチャンク分割のウィンドウ設定を上書きする
func WithChunkWindow(chunkSize, overlap int) ServiceOption {
	return func(o *serviceOptions) {
		o.chunkSize = chunkSize
		o.overlap = overlap
	}
}

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(index Index, embedder Embedder, extractor Extractor, store ObjectStore, opts ...ServiceOption) *Service {
	options := serviceOptions{
		chunkSize: chunker.DefaultChunkSize,
		overlap:   chunker.DefaultOverlap,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		index:     index,
		embedder:  embedder,
		extractor: extractor,
		store:     store,
		chunkSize: options.chunkSize,
		overlap:   options.overlap,
		logger:    options.logger,
	}
}

// IndexReference は参考資料ドキュメントを保存・抽出・分割・Embedding・インデックス化する
func (s *Service) IndexReference(ctx context.Context, assignmentID int64, data []byte, filename string) (*IndexResult, error) {
	if assignmentID <= 0 {
		return nil, fmt.Errorf("assignment ID is required")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document content is empty")
	}

	key, err := s.store.Put(data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to store reference document: %w", err)
	}

	text, err := s.extractor.Extract(data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	chunks, err := chunker.Chunk(text, s.chunkSize, s.overlap)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk text: %w", err)
	}

	s.logger.Info("参考資料を分割しました",
		"assignmentID", assignmentID,
		"filename", filename,
		"chunks", len(chunks),
	)

	if len(chunks) == 0 {
		return &IndexResult{StorageKey: key, TotalChunks: 0}, nil
	}

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	count, err := s.index.IndexChunks(ctx, assignmentID, chunks, vectors, map[string]any{
		"filename": filename,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}

	s.logger.Info("参考資料のインデックス化が完了しました",
		"assignmentID", assignmentID,
		"filename", filename,
		"indexed", count,
	)

	return &IndexResult{StorageKey: key, TotalChunks: count}, nil
}

// ClearAssignment は課題配下の全チャンクをインデックスから削除する
func (s *Service) ClearAssignment(ctx context.Context, assignmentID int64) error {
	if assignmentID <= 0 {
		return fmt.Errorf("assignment ID is required")
	}
	if err := s.index.DeleteByAssignment(ctx, assignmentID); err != nil {
		return fmt.Errorf("failed to delete assignment chunks: %w", err)
	}
	return nil
}

// embedAll はAPIのバッチ上限を守りながら全チャンクのEmbeddingを生成する
func (s *Service) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += maxEmbedBatchSize {
		end := start + maxEmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := s.embedder.EmbedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
