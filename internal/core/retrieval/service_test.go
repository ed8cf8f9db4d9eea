package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder はクエリを記録して固定ベクトルを返すEmbedder実装（テスト用）
type stubEmbedder struct {
	vector   []float32
	err      error
	gotQuery string
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.gotQuery = text
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

// stubIndex は検索パラメータを記録して固定結果を返すIndex実装（テスト用）
type stubIndex struct {
	results []*Result
	err     error

	gotAssignmentID int64
	gotVector       []float32
	gotTopK         int
}

func (i *stubIndex) Search(_ context.Context, assignmentID int64, queryVector []float32, topK int) ([]*Result, error) {
	i.gotAssignmentID = assignmentID
	i.gotVector = queryVector
	i.gotTopK = topK
	if i.err != nil {
		return nil, i.err
	}
	return i.results, nil
}

// TestRetrieve は検索の基本フローを確認します
func TestRetrieve(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	index := &stubIndex{results: []*Result{
		{Text: "chunk one", Score: 0.95},
		{Text: "chunk two", Score: 0.80},
	}}
	retriever := NewRetriever(index, embedder)

	results, err := retriever.Retrieve(context.Background(), 42, "What is a mitochondria?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "What is a mitochondria?", embedder.gotQuery)
	assert.Equal(t, int64(42), index.gotAssignmentID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, index.gotVector)
	assert.Equal(t, 2, index.gotTopK)
	assert.Equal(t, "chunk one", results[0].Text)
}

// TestRetrieveTruncatesQuery は長いクエリが冒頭に切り詰められることを確認します
func TestRetrieveTruncatesQuery(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1}}
	index := &stubIndex{}
	retriever := NewRetriever(index, embedder)

	long := strings.Repeat("a", 1200)
	_, err := retriever.Retrieve(context.Background(), 1, long, 5)
	require.NoError(t, err)

	assert.Len(t, embedder.gotQuery, DefaultQueryMaxChars)
}

// TestRetrieveTruncatesMultibyte はマルチバイト文字の途中で切れないことを確認します
func TestRetrieveTruncatesMultibyte(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1}}
	index := &stubIndex{}
	retriever := NewRetriever(index, embedder, WithQueryMaxChars(10))

	_, err := retriever.Retrieve(context.Background(), 1, strings.Repeat("あ", 50), 5)
	require.NoError(t, err)

	runes := []rune(embedder.gotQuery)
	assert.Len(t, runes, 10)
	assert.Equal(t, strings.Repeat("あ", 10), embedder.gotQuery)
}

// TestRetrieveDefaultTopK はtopK未指定時にデフォルト件数になることを確認します
func TestRetrieveDefaultTopK(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1}}
	index := &stubIndex{}
	retriever := NewRetriever(index, embedder)

	_, err := retriever.Retrieve(context.Background(), 1, "query", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, index.gotTopK)

	_, err = retriever.Retrieve(context.Background(), 1, "query", -3)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, index.gotTopK)
}

// TestRetrieveEmptyQuery は空クエリがエラーになることを確認します
func TestRetrieveEmptyQuery(t *testing.T) {
	retriever := NewRetriever(&stubIndex{}, &stubEmbedder{})

	_, err := retriever.Retrieve(context.Background(), 1, "", 5)
	assert.Error(t, err)
}

// TestRetrieveEmbedderFailure はEmbedding失敗が伝播することを確認します
func TestRetrieveEmbedderFailure(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("api unavailable")}
	retriever := NewRetriever(&stubIndex{}, embedder)

	_, err := retriever.Retrieve(context.Background(), 1, "query", 5)
	assert.ErrorContains(t, err, "failed to embed query")
}

// TestRetrieveSearchFailure はベクトル検索失敗が伝播することを確認します
func TestRetrieveSearchFailure(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1}}
	index := &stubIndex{err: errors.New("connection refused")}
	retriever := NewRetriever(index, embedder)

	_, err := retriever.Retrieve(context.Background(), 1, "query", 5)
	assert.ErrorContains(t, err, "search failed")
}
