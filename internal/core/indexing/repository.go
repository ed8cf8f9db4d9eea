package indexing

import "context"

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch はバッチでEmbeddingを生成する（入力と同順・1対1）
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName はモデル名を返す
	ModelName() string

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int
}

// Index はチャンクベクトルの永続化インターフェース
type Index interface {
	// EnsureSchema はバッキングスキーマを冪等に初期化する
	// 既存スキーマの次元がdimensionと一致しない場合はエラーを返す
	EnsureSchema(ctx context.Context, dimension int) error

	// IndexChunks はチャンクとベクトルを課題スコープでupsertし、書き込んだ件数を返す
	// チャンク0件の入力は有効で、0を返す
	IndexChunks(ctx context.Context, assignmentID int64, chunks []string, vectors [][]float32, metadata map[string]any) (int, error)

	// DeleteByAssignment は課題配下の全チャンクを削除する（冪等）
	DeleteByAssignment(ctx context.Context, assignmentID int64) error
}

// Extractor はアップロードされたドキュメントからテキストを抽出するインターフェース
type Extractor interface {
	// Extract はファイル内容と名前からプレーンテキストを抽出する
	Extract(data []byte, filename string) (string, error)
}

// ObjectStore はアップロードファイルのバイナリ保存インターフェース
type ObjectStore interface {
	// Put はデータを保存し、不透明なキーを返す
	Put(data []byte, filename string) (string, error)

	// Get はキーに対応するデータを取得する
	Get(key string) ([]byte, error)
}
