package retrieval

// Result はベクトル検索で得られた参考資料チャンクを表す
// 永続化されない一時データで、Scoreはコサイン類似度（高いほど類似）
// スコアの値域はEmbeddingモデルやインデックス実装をまたいで比較可能とは限らない
type Result struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
