package grading

import (
	"encoding/json"
	"strings"
)

// requiredFields は採点レスポンスの必須トップレベルフィールド
var requiredFields = []string{"score", "breakdown", "feedback", "citations"}

// StripCodeFence はレスポンス前後のMarkdownコードフェンスを除去する
// プロンプトでフェンス禁止を指示していても、プロバイダが付与してくるケースが観測されている
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = s[3:]
		// 言語タグ（```json など）は開始フェンス直後の1行目にある
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			firstLine := strings.TrimSpace(s[:idx])
			if firstLine == "json" || firstLine == "" {
				s = s[idx+1:]
			}
		} else {
			s = strings.TrimPrefix(strings.TrimSpace(s), "json")
		}
	}

	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}

	return strings.TrimSpace(s)
}

// ParseStructuredGrade はLLMレスポンスをStructuredGradeとして解析・検証する
// 必須フィールドの欠落や数値不変条件の違反はMalformedResponseErrorになる
func ParseStructuredGrade(raw string) (*StructuredGrade, error) {
	cleaned := StripCodeFence(raw)

	// フィールドの存在検証はゼロ値へのサイレントなデフォルトを避けるため、
	// 型付き構造体へのデコード前にトップレベルキーで行う
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return nil, &MalformedResponseError{Field: "(root)", Reason: "response is not a JSON object"}
	}

	for _, field := range requiredFields {
		if _, ok := top[field]; !ok {
			return nil, &MalformedResponseError{Field: field}
		}
	}

	var grade StructuredGrade
	if err := json.Unmarshal([]byte(cleaned), &grade); err != nil {
		return nil, &MalformedResponseError{Field: "(root)", Reason: err.Error()}
	}

	if grade.Score < 0 {
		return nil, &MalformedResponseError{Field: "score", Reason: "must be a non-negative integer"}
	}

	// points ≤ max_points はプロンプトで指示しているが、生成側を信頼せず機械的に検証する
	// クランプせずリジェクトする（講師に見える点数を黙って書き換えない）
	for name, criterion := range grade.Breakdown {
		if criterion.Points > criterion.MaxPoints {
			return nil, &MalformedResponseError{
				Field:  "breakdown." + name,
				Reason: "points exceed max_points",
			}
		}
		if criterion.Points < 0 || criterion.MaxPoints < 0 {
			return nil, &MalformedResponseError{
				Field:  "breakdown." + name,
				Reason: "points must not be negative",
			}
		}
	}

	return &grade, nil
}
