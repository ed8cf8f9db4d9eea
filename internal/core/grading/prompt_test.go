package grading

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/autograder/internal/core/retrieval"
)

// TestBuildGradingPrompt はプロンプトの構成要素が揃っていることを確認します
func TestBuildGradingPrompt(t *testing.T) {
	gctx := &Context{
		SubmissionText: "The mitochondria is the powerhouse of the cell.",
		Rubric:         Rubric(`{"thesis": {"max_points": 30}, "evidence": {"max_points": 70}}`),
		Chunks: []*retrieval.Result{
			{Text: "Mitochondria produce ATP.", Score: 0.92},
			{Text: "Cellular respiration occurs in mitochondria.", Score: 0.88},
		},
	}

	prompt, err := BuildGradingPrompt(gctx)
	require.NoError(t, err)

	// 固定インストラクションが先頭にある
	assert.True(t, strings.HasPrefix(prompt, "You are an expert grading assistant"))

	// ルーブリックが埋め込まれている
	assert.Contains(t, prompt, "RUBRIC:")
	assert.Contains(t, prompt, `"thesis"`)
	assert.Contains(t, prompt, `"evidence"`)

	// 参考コンテキストが検索順の番号付きで描画される
	assert.Contains(t, prompt, "[Reference 1]: Mitochondria produce ATP.")
	assert.Contains(t, prompt, "[Reference 2]: Cellular respiration occurs in mitochondria.")

	// 提出テキストが含まれる
	assert.Contains(t, prompt, "SUBMISSION TO GRADE:\nThe mitochondria is the powerhouse of the cell.")
}

// TestBuildGradingPromptNoChunks はコンテキストなしでもプロンプトが成立することを確認します
func TestBuildGradingPromptNoChunks(t *testing.T) {
	gctx := &Context{
		SubmissionText: "submission text",
		Rubric:         Rubric(`{"quality": {"max_points": 100}}`),
	}

	prompt, err := BuildGradingPrompt(gctx)
	require.NoError(t, err)

	assert.Contains(t, prompt, "(no reference context available)")
	assert.NotContains(t, prompt, "[Reference 1]")
}

// TestBuildGradingPromptDeterministic は同一入力で同一プロンプトになることを確認します
// ルーブリックのキー順序はシリアライズで正規化される
func TestBuildGradingPromptDeterministic(t *testing.T) {
	first := &Context{
		SubmissionText: "text",
		Rubric:         Rubric(`{"b": {"max_points": 1}, "a": {"max_points": 2}}`),
	}
	second := &Context{
		SubmissionText: "text",
		Rubric:         Rubric(`{"a": {"max_points": 2}, "b": {"max_points": 1}}`),
	}

	p1, err := BuildGradingPrompt(first)
	require.NoError(t, err)
	p2, err := BuildGradingPrompt(second)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
}

// TestBuildGradingPromptInvalidRubric は不正なルーブリックがエラーになることを確認します
func TestBuildGradingPromptInvalidRubric(t *testing.T) {
	gctx := &Context{
		SubmissionText: "text",
		Rubric:         Rubric(`not json`),
	}

	_, err := BuildGradingPrompt(gctx)
	assert.Error(t, err)
}
