package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

const (
	// DefaultTopK は検索結果のデフォルト件数
	DefaultTopK = 5

	// DefaultQueryMaxChars はクエリとして使用するサブミッション冒頭の最大文字数
	// 全文をEmbeddingするコストをかけずに、冒頭の主張を代表値として扱うヒューリスティック
	DefaultQueryMaxChars = 500
)

// Embedder はクエリテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index はベクトル検索インターフェース
type Index interface {
	// Search は課題スコープ内で類似チャンクを検索する
	Search(ctx context.Context, assignmentID int64, queryVector []float32, topK int) ([]*Result, error)
}

// Retriever はサブミッションに関連する参考資料チャンクを検索する
type Retriever struct {
	index         Index
	embedder      Embedder
	queryMaxChars int
	logger        *slog.Logger
}

type retrieverOptions struct {
	queryMaxChars int
	logger        *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*retrieverOptions)

// WithQueryMaxChars はクエリ切り詰めの文字数を上書きする
func WithQueryMaxChars(n int) RetrieverOption {
	return func(o *retrieverOptions) {
		o.queryMaxChars = n
	}
}

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(o *retrieverOptions) {
		o.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(index Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	options := retrieverOptions{
		queryMaxChars: DefaultQueryMaxChars,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Retriever{
		index:         index,
		embedder:      embedder,
		queryMaxChars: options.queryMaxChars,
		logger:        options.logger,
	}
}

// Retrieve はクエリテキストに関連するチャンクを課題スコープ内から上位K件取得する
// クエリはサブミッション冒頭queryMaxChars文字に切り詰めてEmbeddingする
func (r *Retriever) Retrieve(ctx context.Context, assignmentID int64, queryText string, topK int) ([]*Result, error) {
	if queryText == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	query := truncateRunes(queryText, r.queryMaxChars)

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.index.Search(ctx, assignmentID, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	r.logger.Debug("コンテキスト検索完了",
		"assignmentID", assignmentID,
		"queryChars", len([]rune(query)),
		"results", len(results),
	)

	return results, nil
}

// truncateRunes は文字数ベースでテキストを切り詰める（マルチバイト安全）
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
