package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/autograder/internal/core/grading"
)

// Job は採点ジョブのキューエントリを表す
type Job struct {
	ID           int64
	SubmissionID int64
	Attempts     int
}

// JobQueue は grading_jobs テーブルを使用したPostgreSQLジョブキュー
// FOR UPDATE SKIP LOCKEDにより複数ワーカーが同一ジョブを同時取得しない
// 配送セマンティクスはat-least-once（ワーカークラッシュ時は回収スイープで再配送）
type JobQueue struct {
	pool *pgxpool.Pool
}

// NewJobQueue は新しい JobQueue を返す
func NewJobQueue(pool *pgxpool.Pool) *JobQueue {
	return &JobQueue{pool: pool}
}

var _ grading.Queue = (*JobQueue)(nil)

// Enqueue はサブミッションの採点ジョブを登録する
func (q *JobQueue) Enqueue(ctx context.Context, submissionID int64) error {
	if _, err := q.pool.Exec(ctx, `
		INSERT INTO grading_jobs (submission_id, status) VALUES ($1, 'pending')
	`, submissionID); err != nil {
		return fmt.Errorf("failed to enqueue grading job: %w", err)
	}
	return nil
}

// Dequeue は最も古いpendingジョブを1件取得してrunningへ遷移させる
// ジョブがない場合は ok=false を返す
func (q *JobQueue) Dequeue(ctx context.Context) (*Job, bool, error) {
	var job Job
	err := q.pool.QueryRow(ctx, `
		UPDATE grading_jobs
		SET status = 'running', started_at = now(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM grading_jobs
			WHERE status = 'pending'
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, submission_id, attempts
	`).Scan(&job.ID, &job.SubmissionID, &job.Attempts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to dequeue grading job: %w", err)
	}

	return &job, true, nil
}

// MarkDone はジョブをdoneへ遷移させる
func (q *JobQueue) MarkDone(ctx context.Context, jobID int64) error {
	if _, err := q.pool.Exec(ctx, `
		UPDATE grading_jobs SET status = 'done', finished_at = now() WHERE id = $1
	`, jobID); err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return nil
}

// MarkFailed はジョブをfailedへ遷移させ、診断メッセージを記録する
// 採点レベルの失敗はここで確定し、自動再配送はしない（再採点は明示的な再エンキュー）
func (q *JobQueue) MarkFailed(ctx context.Context, jobID int64, diagnostic string) error {
	if _, err := q.pool.Exec(ctx, `
		UPDATE grading_jobs SET status = 'failed', finished_at = now(), last_error = $2 WHERE id = $1
	`, jobID, diagnostic); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// ReclaimStale はワーカークラッシュでgradingのまま残ったサブミッションを回収する
// staleAgeより古いrunningジョブをfailedに確定させ、対応するサブミッションを
// queuedへ戻して再エンキューする。回収した件数を返す
func (q *JobQueue) ReclaimStale(ctx context.Context, staleAge time.Duration) (int, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reclaim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE grading_jobs
		SET status = 'failed', finished_at = now(), last_error = 'reclaimed: worker did not finish within stale age'
		WHERE status = 'running' AND started_at < now() - $1::interval
	`, staleAge); err != nil {
		return 0, fmt.Errorf("failed to fail stale jobs: %w", err)
	}

	rows, err := tx.Query(ctx, `
		UPDATE submissions s
		SET status = 'queued'
		WHERE s.status = 'grading'
		  AND NOT EXISTS (
			SELECT 1 FROM grading_jobs j
			WHERE j.submission_id = s.id AND j.status = 'running'
		  )
		RETURNING s.id
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale submissions: %w", err)
	}

	var reclaimed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan reclaimed submission: %w", err)
		}
		reclaimed = append(reclaimed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read reclaimed submissions: %w", err)
	}

	for _, id := range reclaimed {
		if _, err := tx.Exec(ctx, `
			INSERT INTO grading_jobs (submission_id, status) VALUES ($1, 'pending')
		`, id); err != nil {
			return 0, fmt.Errorf("failed to re-enqueue submission %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit reclaim: %w", err)
	}

	return len(reclaimed), nil
}
