package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResponse = `{
  "score": 85,
  "breakdown": {
    "thesis": {"points": 25, "max_points": 30, "comment": "明確だが根拠が弱い"},
    "evidence": {"points": 60, "max_points": 70, "comment": "参考資料との対応が取れている"}
  },
  "feedback": "全体として良い提出です。",
  "citations": [
    {"reference_id": 1, "text": "the mitochondria is the powerhouse", "relevance": "主要な主張の裏付け"}
  ]
}`

// TestParseStructuredGrade は正常なレスポンスの解析を確認します
func TestParseStructuredGrade(t *testing.T) {
	grade, err := ParseStructuredGrade(validResponse)
	require.NoError(t, err)

	assert.Equal(t, 85, grade.Score)
	assert.Len(t, grade.Breakdown, 2)
	assert.Equal(t, 25, grade.Breakdown["thesis"].Points)
	assert.Equal(t, 30, grade.Breakdown["thesis"].MaxPoints)
	assert.Equal(t, "全体として良い提出です。", grade.Feedback)
	require.Len(t, grade.Citations, 1)
	assert.Equal(t, 1, grade.Citations[0].ReferenceID)
}

// TestParseStructuredGradeWithCodeFence はコードフェンス付きレスポンスの解析を確認します
func TestParseStructuredGradeWithCodeFence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "jsonタグ付きフェンス", raw: "```json\n" + validResponse + "\n```"},
		{name: "タグなしフェンス", raw: "```\n" + validResponse + "\n```"},
		{name: "前後の空白", raw: "\n\n  " + validResponse + "  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, err := ParseStructuredGrade(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, 85, grade.Score)
		})
	}
}

// TestParseStructuredGradeMissingField は必須フィールドの欠落検出を確認します
func TestParseStructuredGradeMissingField(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantField string
	}{
		{
			name:      "citations欠落",
			raw:       `{"score": 80, "breakdown": {}, "feedback": "ok"}`,
			wantField: "citations",
		},
		{
			name:      "score欠落",
			raw:       `{"breakdown": {}, "feedback": "ok", "citations": []}`,
			wantField: "score",
		},
		{
			name:      "breakdown欠落",
			raw:       `{"score": 80, "feedback": "ok", "citations": []}`,
			wantField: "breakdown",
		},
		{
			name:      "feedback欠落",
			raw:       `{"score": 80, "breakdown": {}, "citations": []}`,
			wantField: "feedback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStructuredGrade(tt.raw)
			require.Error(t, err)
			require.True(t, IsMalformedResponse(err))

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.wantField, malformed.Field)
		})
	}
}

// TestParseStructuredGradeNotJSON はJSON以外のレスポンスがエラーになることを確認します
func TestParseStructuredGradeNotJSON(t *testing.T) {
	tests := []string{
		"I cannot grade this submission.",
		"",
		`["score", 80]`,
	}

	for _, raw := range tests {
		_, err := ParseStructuredGrade(raw)
		require.Error(t, err)
		assert.True(t, IsMalformedResponse(err))
	}
}

// TestParseStructuredGradeInvariantViolations は数値不変条件の検証を確認します
func TestParseStructuredGradeInvariantViolations(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantField string
	}{
		{
			name: "pointsがmax_pointsを超過",
			raw: `{"score": 110, "breakdown": {
				"thesis": {"points": 40, "max_points": 30, "comment": ""}
			}, "feedback": "", "citations": []}`,
			wantField: "breakdown.thesis",
		},
		{
			name: "pointsが負",
			raw: `{"score": 0, "breakdown": {
				"evidence": {"points": -5, "max_points": 30, "comment": ""}
			}, "feedback": "", "citations": []}`,
			wantField: "breakdown.evidence",
		},
		{
			name:      "scoreが負",
			raw:       `{"score": -1, "breakdown": {}, "feedback": "", "citations": []}`,
			wantField: "score",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStructuredGrade(tt.raw)
			require.Error(t, err)
			require.True(t, IsMalformedResponse(err))

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.wantField, malformed.Field)
		})
	}
}

// TestStripCodeFence はフェンス除去の境界ケースを確認します
func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "フェンスなし", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "jsonタグ付き", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "タグなし", in: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "閉じフェンスなし", in: "```json\n{\"a\": 1}", want: `{"a": 1}`},
		{name: "1行フェンス", in: "```json{\"a\": 1}```", want: `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}
