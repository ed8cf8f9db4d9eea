// Package worker は採点ジョブを処理する常駐ワーカープールを提供する
package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jinford/autograder/internal/core/grading"
	"github.com/jinford/autograder/internal/infra/postgres"
)

// JobSource は採点ジョブの取得・確定インターフェース
type JobSource interface {
	// Dequeue はpendingジョブを1件取得する（なければ ok=false）
	Dequeue(ctx context.Context) (*postgres.Job, bool, error)

	// MarkDone はジョブを完了として確定する
	MarkDone(ctx context.Context, jobID int64) error

	// MarkFailed はジョブを失敗として確定する
	MarkFailed(ctx context.Context, jobID int64, diagnostic string) error

	// ReclaimStale は放置されたgradingサブミッションを回収して再エンキューする
	ReclaimStale(ctx context.Context, staleAge time.Duration) (int, error)
}

// Grader は1サブミッションの採点ジョブ本体のインターフェース
type Grader interface {
	GradeSubmission(ctx context.Context, submissionID int64) grading.JobResult
}

// Pool は複数ワーカーでジョブキューをポーリングする採点ワーカープール
// ジョブは各ワーカーで独立に処理され、ジョブ内の工程は逐次実行される
type Pool struct {
	source        JobSource
	grader        Grader
	concurrency   int
	pollInterval  time.Duration
	staleAge      time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// Config は Pool の設定
type Config struct {
	Concurrency   int
	PollInterval  time.Duration
	StaleAge      time.Duration
	SweepInterval time.Duration
}

// NewPool は新しい Pool を作成する
func NewPool(source JobSource, grader Grader, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Pool{
		source:        source,
		grader:        grader,
		concurrency:   cfg.Concurrency,
		pollInterval:  cfg.PollInterval,
		staleAge:      cfg.StaleAge,
		sweepInterval: cfg.SweepInterval,
		logger:        logger,
	}
}

// Run はワーカープールと回収スイープを起動し、ctxのキャンセルまでブロックする
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("採点ワーカーを起動します",
		"concurrency", p.concurrency,
		"pollInterval", p.pollInterval.String(),
		"staleAge", p.staleAge.String(),
	)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.workerLoop(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweepLoop(ctx)
	}()

	wg.Wait()
	p.logger.Info("採点ワーカーを停止しました")
	return ctx.Err()
}

// workerLoop はジョブをポーリングして処理し続ける
// キューが空になるまで連続処理し、空になったらpollIntervalだけ待つ
func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		for {
			if ctx.Err() != nil {
				return
			}
			processed, err := p.processOne(ctx, workerID)
			if err != nil {
				p.logger.Error("ジョブ取得に失敗しました", "workerID", workerID, "error", err)
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// processOne はジョブを1件処理する（ジョブがなければ false）
func (p *Pool) processOne(ctx context.Context, workerID int) (bool, error) {
	job, ok, err := p.source.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	p.logger.Info("ジョブを処理します",
		"workerID", workerID,
		"jobID", job.ID,
		"submissionID", job.SubmissionID,
		"attempts", job.Attempts,
	)

	// 採点レベルの失敗はJobResultに収まっており、transport層の失敗としては扱わない
	result := p.grader.GradeSubmission(ctx, job.SubmissionID)

	if result.Status == grading.JobSucceeded {
		if err := p.source.MarkDone(ctx, job.ID); err != nil {
			p.logger.Error("ジョブ完了の記録に失敗しました", "jobID", job.ID, "error", err)
		}
	} else {
		if err := p.source.MarkFailed(ctx, job.ID, result.Err); err != nil {
			p.logger.Error("ジョブ失敗の記録に失敗しました", "jobID", job.ID, "error", err)
		}
	}

	return true, nil
}

// sweepLoop はワーカークラッシュでgradingのまま残ったサブミッションを定期回収する
func (p *Pool) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reclaimed, err := p.source.ReclaimStale(ctx, p.staleAge)
		if err != nil {
			p.logger.Error("回収スイープに失敗しました", "error", err)
			continue
		}
		if reclaimed > 0 {
			p.logger.Warn("放置されたサブミッションを再エンキューしました", "reclaimed", reclaimed)
		}
	}
}
