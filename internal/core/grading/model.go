package grading

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinford/autograder/internal/core/retrieval"
)

// Status はサブミッションの採点状態を表す
type Status string

const (
	// StatusQueued はサブミッション作成直後の初期状態
	StatusQueued Status = "queued"
	// StatusGrading は採点ジョブ実行中の状態
	StatusGrading Status = "grading"
	// StatusDone は採点成功の終端状態
	StatusDone Status = "done"
	// StatusError は採点失敗の終端状態
	StatusError Status = "error"
)

// Valid は定義済みの状態かどうかを返す
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusGrading, StatusDone, StatusError:
		return true
	}
	return false
}

// Terminal は終端状態かどうかを返す
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Rubric は講師が定義した採点基準を表す
// 内容はJSONオブジェクトとして検証されるが、スキーマは講師の裁量に委ねる
type Rubric json.RawMessage

// Validate はルーブリックがJSONオブジェクトであることを確認する
func (r Rubric) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("rubric is required")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r, &obj); err != nil {
		return fmt.Errorf("rubric must be a JSON object: %w", err)
	}
	if len(obj) == 0 {
		return fmt.Errorf("rubric must have at least one criterion")
	}
	return nil
}

// Indent はプロンプト埋め込み用に正規化したJSON文字列を返す
// キー順はencoding/jsonのマップソートにより決定的
func (r Rubric) Indent() (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(r, &obj); err != nil {
		return "", fmt.Errorf("failed to decode rubric: %w", err)
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rubric: %w", err)
	}
	return string(out), nil
}

// Assignment は課題を表す
type Assignment struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Rubric    Rubric    `json:"rubric"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submission は学生の提出物を表す
type Submission struct {
	ID            int64     `json:"id"`
	AssignmentID  int64     `json:"assignmentID"`
	Filename      string    `json:"filename"`
	StorageKey    string    `json:"storageKey"`
	ExtractedText string    `json:"extractedText"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CriterionScore はルーブリック基準ごとの採点内訳を表す
type CriterionScore struct {
	Points    int    `json:"points"`
	MaxPoints int    `json:"max_points"`
	Comment   string `json:"comment"`
}

// Citation は採点根拠として引用された参考資料を表す
type Citation struct {
	ReferenceID int    `json:"reference_id"`
	Text        string `json:"text"`
	Relevance   string `json:"relevance"`
}

// StructuredGrade はLLMによる採点結果の構造化データを表す
// 4つのトップレベルフィールドすべてが必須（欠落はMalformedResponseError）
type StructuredGrade struct {
	Score     int                       `json:"score"`
	Breakdown map[string]CriterionScore `json:"breakdown"`
	Feedback  string                    `json:"feedback"`
	Citations []Citation                `json:"citations"`
}

// Grade は永続化された採点結果を表す（サブミッションと1:1）
type Grade struct {
	ID           int64     `json:"id"`
	SubmissionID int64     `json:"submissionID"`
	StructuredGrade
	CreatedAt time.Time `json:"createdAt"`
}

// Context は1回の採点試行で使用する入力の集約
// プロンプトビルダーが消費して破棄される一時データ
type Context struct {
	SubmissionText string
	Rubric         Rubric
	Chunks         []*retrieval.Result
}
