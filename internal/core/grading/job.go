package grading

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// JobStatus はジョブ実行結果の種別（transport層向け）
type JobStatus string

const (
	// JobSucceeded は採点成功
	JobSucceeded JobStatus = "success"
	// JobFailed は採点失敗（サブミッションはerror状態に遷移済み）
	JobFailed JobStatus = "error"
)

// JobResult は採点ジョブ1回分の構造化された実行結果
// 失敗もこの結果として返し、キュー層に障害を伝播させない
type JobResult struct {
	SubmissionID int64     `json:"submissionID"`
	Status       JobStatus `json:"status"`
	Score        int       `json:"score,omitempty"`
	Err          string    `json:"error,omitempty"`
}

// Orchestrator は採点ジョブの全工程を順序実行する
// 検索 → 生成 → 永続化の順で、各工程の失敗はすべてerror状態への遷移に変換される
type Orchestrator struct {
	store     Store
	retriever Retriever
	grader    *Service
	topK      int
	logger    *slog.Logger
}

type orchestratorOptions struct {
	topK   int
	logger *slog.Logger
}

// OrchestratorOption は Orchestrator のオプション設定
type OrchestratorOption func(*orchestratorOptions)

// WithTopK はコンテキスト検索の件数を上書きする
func WithTopK(k int) OrchestratorOption {
	return func(o *orchestratorOptions) {
		o.topK = k
	}
}

// WithOrchestratorLogger は Orchestrator にロガーを設定する
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *orchestratorOptions) {
		o.logger = logger
	}
}

// NewOrchestrator は新しい Orchestrator を作成する
func NewOrchestrator(store Store, retriever Retriever, grader *Service, opts ...OrchestratorOption) *Orchestrator {
	options := orchestratorOptions{
		topK:   5,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Orchestrator{
		store:     store,
		retriever: retriever,
		grader:    grader,
		topK:      options.topK,
		logger:    options.logger,
	}
}

// GradeSubmission は1サブミッションの採点ジョブ本体
// 状態遷移: queued → grading → done|error
// どの工程で失敗してもerror状態へ遷移し、診断情報をJobResultに収めて返す
func (o *Orchestrator) GradeSubmission(ctx context.Context, submissionID int64) JobResult {
	o.logger.Info("採点ジョブを開始します", "submissionID", submissionID)

	// 試行開始時に一度だけgradingへ遷移する
	if err := o.store.UpdateSubmissionStatus(ctx, submissionID, StatusGrading); err != nil {
		return o.fail(ctx, submissionID, fmt.Errorf("failed to mark submission as grading: %w", err))
	}

	grade, err := o.run(ctx, submissionID)
	if err != nil {
		return o.fail(ctx, submissionID, err)
	}

	if err := o.store.UpdateSubmissionStatus(ctx, submissionID, StatusDone); err != nil {
		return o.fail(ctx, submissionID, fmt.Errorf("failed to mark submission as done: %w", err))
	}

	o.logger.Info("採点ジョブが完了しました",
		"submissionID", submissionID,
		"score", grade.Score,
	)

	return JobResult{
		SubmissionID: submissionID,
		Status:       JobSucceeded,
		Score:        grade.Score,
	}
}

// run は採点ジョブの工程を順序実行する（工程内の並列性はない）
func (o *Orchestrator) run(ctx context.Context, submissionID int64) (*StructuredGrade, error) {
	submission, err := o.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %d: %w", submissionID, err)
	}

	assignment, err := o.store.GetAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment %d: %w", submission.AssignmentID, err)
	}

	chunks, err := o.retriever.Retrieve(ctx, assignment.ID, submission.ExtractedText, o.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	o.logger.Info("コンテキストを取得しました",
		"submissionID", submissionID,
		"assignmentID", assignment.ID,
		"chunks", len(chunks),
	)

	grade, err := o.grader.Grade(ctx, &Context{
		SubmissionText: submission.ExtractedText,
		Rubric:         assignment.Rubric,
		Chunks:         chunks,
	})
	if err != nil {
		return nil, err
	}

	if _, err := o.store.UpsertGrade(ctx, submissionID, grade); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return grade, nil
}

// fail はサブミッションをerror状態へ遷移させ、失敗結果を構築する
func (o *Orchestrator) fail(ctx context.Context, submissionID int64, cause error) JobResult {
	o.logger.Error("採点ジョブが失敗しました",
		"submissionID", submissionID,
		"error", cause,
	)

	if err := o.store.UpdateSubmissionStatus(ctx, submissionID, StatusError); err != nil {
		// 状態更新にも失敗した場合、サブミッションはgradingのまま残る
		// 回収スイープがqueuedへ戻すまでの既知の猶予とする
		if !errors.Is(err, ErrSubmissionNotFound) {
			o.logger.Error("error状態への遷移に失敗しました",
				"submissionID", submissionID,
				"error", err,
			)
		}
	}

	return JobResult{
		SubmissionID: submissionID,
		Status:       JobFailed,
		Err:          cause.Error(),
	}
}
