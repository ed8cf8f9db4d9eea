package grading

import (
	"context"

	"github.com/jinford/autograder/internal/core/retrieval"
)

// Store は課題・サブミッション・採点結果への狭いCRUDインターフェース
// 各呼び出しは独立して永続化される（トランザクション管理はしない）
type Store interface {
	// CreateAssignment は課題を作成してIDを採番する
	CreateAssignment(ctx context.Context, title string, rubric Rubric) (*Assignment, error)

	// GetAssignment はIDで課題を取得する（存在しなければErrAssignmentNotFound）
	GetAssignment(ctx context.Context, id int64) (*Assignment, error)

	// ListAssignments は課題一覧を新しい順に取得する
	ListAssignments(ctx context.Context) ([]*Assignment, error)

	// CreateSubmission はstatus=queuedでサブミッションを作成する
	CreateSubmission(ctx context.Context, assignmentID int64, filename, storageKey, extractedText string) (*Submission, error)

	// GetSubmission はIDでサブミッションを取得する（存在しなければErrSubmissionNotFound）
	GetSubmission(ctx context.Context, id int64) (*Submission, error)

	// ListSubmissionsByAssignment は課題配下のサブミッション一覧を取得する
	ListSubmissionsByAssignment(ctx context.Context, assignmentID int64) ([]*Submission, error)

	// UpdateSubmissionStatus はサブミッションの採点状態を更新する
	UpdateSubmissionStatus(ctx context.Context, id int64, status Status) error

	// UpsertGrade は採点結果を保存する
	// サブミッションと1:1。再採点時は上書きする（at-least-once配送への冪等化）
	UpsertGrade(ctx context.Context, submissionID int64, grade *StructuredGrade) (*Grade, error)

	// GetGradeBySubmission はサブミッションの採点結果を取得する（存在しなければErrGradeNotFound）
	GetGradeBySubmission(ctx context.Context, submissionID int64) (*Grade, error)
}

// Queue は採点ジョブのエンキューインターフェース
// 配送はat-least-onceを想定する（transport実装の責務）
type Queue interface {
	// Enqueue はサブミッションの採点ジョブを登録する
	Enqueue(ctx context.Context, submissionID int64) error
}

// Retriever はサブミッションに関連するコンテキストを検索するインターフェース
type Retriever interface {
	Retrieve(ctx context.Context, assignmentID int64, queryText string, topK int) ([]*retrieval.Result, error)
}

// CompletionRequest はLLM呼び出しのリクエストを表す
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse はLLM呼び出しのレスポンスを表す
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// GraderClient は採点テキストを生成するLLMクライアントインターフェース
// リトライポリシーは実装側の責務（オーケストレーターは試行単位で扱う）
type GraderClient interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
