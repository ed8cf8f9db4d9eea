package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/autograder/internal/core/grading"
)

// Store は grading.Store を実装するPostgreSQLリポジトリ
// 各操作は単独で永続化され、呼び出し間のトランザクションは張らない
type Store struct {
	pool *pgxpool.Pool
}

// NewStore は新しい Store を返す
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ grading.Store = (*Store)(nil)

// CreateAssignment は課題を作成する
func (s *Store) CreateAssignment(ctx context.Context, title string, rubric grading.Rubric) (*grading.Assignment, error) {
	if err := rubric.Validate(); err != nil {
		return nil, err
	}

	var a grading.Assignment
	var rubricJSON []byte
	err := s.pool.QueryRow(ctx, `
		INSERT INTO assignments (title, rubric)
		VALUES ($1, $2)
		RETURNING id, title, rubric, created_at
	`, title, []byte(rubric)).Scan(&a.ID, &a.Title, &rubricJSON, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	a.Rubric = grading.Rubric(rubricJSON)

	return &a, nil
}

// GetAssignment はIDで課題を取得する
func (s *Store) GetAssignment(ctx context.Context, id int64) (*grading.Assignment, error) {
	var a grading.Assignment
	var rubricJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, rubric, created_at FROM assignments WHERE id = $1
	`, id).Scan(&a.ID, &a.Title, &rubricJSON, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", grading.ErrAssignmentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	a.Rubric = grading.Rubric(rubricJSON)

	return &a, nil
}

// ListAssignments は課題一覧を新しい順に取得する
func (s *Store) ListAssignments(ctx context.Context) ([]*grading.Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, rubric, created_at FROM assignments ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*grading.Assignment, 0)
	for rows.Next() {
		var a grading.Assignment
		var rubricJSON []byte
		if err := rows.Scan(&a.ID, &a.Title, &rubricJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Rubric = grading.Rubric(rubricJSON)
		assignments = append(assignments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assignments: %w", err)
	}

	return assignments, nil
}

// CreateSubmission はstatus=queuedでサブミッションを作成する
func (s *Store) CreateSubmission(ctx context.Context, assignmentID int64, filename, storageKey, extractedText string) (*grading.Submission, error) {
	var sub grading.Submission
	var status string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO submissions (assignment_id, filename, storage_key, extracted_text, status)
		VALUES ($1, $2, $3, $4, 'queued')
		RETURNING id, assignment_id, filename, storage_key, extracted_text, status, created_at
	`, assignmentID, filename, storageKey, extractedText).Scan(
		&sub.ID, &sub.AssignmentID, &sub.Filename, &sub.StorageKey, &sub.ExtractedText, &status, &sub.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	sub.Status = grading.Status(status)

	return &sub, nil
}

// GetSubmission はIDでサブミッションを取得する
func (s *Store) GetSubmission(ctx context.Context, id int64) (*grading.Submission, error) {
	var sub grading.Submission
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, assignment_id, filename, storage_key, extracted_text, status, created_at
		FROM submissions WHERE id = $1
	`, id).Scan(
		&sub.ID, &sub.AssignmentID, &sub.Filename, &sub.StorageKey, &sub.ExtractedText, &status, &sub.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", grading.ErrSubmissionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	sub.Status = grading.Status(status)

	return &sub, nil
}

// ListSubmissionsByAssignment は課題配下のサブミッション一覧を取得する
func (s *Store) ListSubmissionsByAssignment(ctx context.Context, assignmentID int64) ([]*grading.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, assignment_id, filename, storage_key, extracted_text, status, created_at
		FROM submissions WHERE assignment_id = $1 ORDER BY created_at DESC
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]*grading.Submission, 0)
	for rows.Next() {
		var sub grading.Submission
		var status string
		if err := rows.Scan(
			&sub.ID, &sub.AssignmentID, &sub.Filename, &sub.StorageKey, &sub.ExtractedText, &status, &sub.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		sub.Status = grading.Status(status)
		submissions = append(submissions, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}

	return submissions, nil
}

// UpdateSubmissionStatus はサブミッションの採点状態を更新する
func (s *Store) UpdateSubmissionStatus(ctx context.Context, id int64, status grading.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid submission status: %q", status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", grading.ErrSubmissionNotFound, id)
	}

	return nil
}

// UpsertGrade は採点結果を保存する
// サブミッションと1:1。at-least-once配送による再採点は上書きで冪等化する
func (s *Store) UpsertGrade(ctx context.Context, submissionID int64, grade *grading.StructuredGrade) (*grading.Grade, error) {
	breakdownJSON, err := json.Marshal(grade.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to encode breakdown: %w", err)
	}
	citations := grade.Citations
	if citations == nil {
		citations = []grading.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode citations: %w", err)
	}

	var persisted grading.Grade
	var persistedBreakdown, persistedCitations []byte
	err = s.pool.QueryRow(ctx, `
		INSERT INTO grades (submission_id, score, breakdown, feedback, citations)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (submission_id) DO UPDATE SET
			score = EXCLUDED.score,
			breakdown = EXCLUDED.breakdown,
			feedback = EXCLUDED.feedback,
			citations = EXCLUDED.citations
		RETURNING id, submission_id, score, breakdown, feedback, citations, created_at
	`, submissionID, grade.Score, breakdownJSON, grade.Feedback, citationsJSON).Scan(
		&persisted.ID, &persisted.SubmissionID, &persisted.Score,
		&persistedBreakdown, &persisted.Feedback, &persistedCitations, &persisted.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grade: %w", err)
	}

	if err := json.Unmarshal(persistedBreakdown, &persisted.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	if err := json.Unmarshal(persistedCitations, &persisted.Citations); err != nil {
		return nil, fmt.Errorf("failed to decode citations: %w", err)
	}

	return &persisted, nil
}

// GetGradeBySubmission はサブミッションの採点結果を取得する
func (s *Store) GetGradeBySubmission(ctx context.Context, submissionID int64) (*grading.Grade, error) {
	var g grading.Grade
	var breakdownJSON, citationsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, score, breakdown, feedback, citations, created_at
		FROM grades WHERE submission_id = $1
	`, submissionID).Scan(
		&g.ID, &g.SubmissionID, &g.Score, &breakdownJSON, &g.Feedback, &citationsJSON, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: submission %d", grading.ErrGradeNotFound, submissionID)
		}
		return nil, fmt.Errorf("failed to get grade: %w", err)
	}

	if err := json.Unmarshal(breakdownJSON, &g.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown: %w", err)
	}
	if err := json.Unmarshal(citationsJSON, &g.Citations); err != nil {
		return nil, fmt.Errorf("failed to decode citations: %w", err)
	}

	return &g, nil
}
