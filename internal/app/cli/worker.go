package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/autograder/internal/worker"
)

// WorkerRunAction は採点ワーカーを起動するコマンドのアクション
// シグナル受信でコンテキストがキャンセルされるまでジョブを処理し続ける
func WorkerRunAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	orchestrator, err := appCtx.Orchestrator()
	if err != nil {
		return err
	}

	pool := worker.NewPool(
		appCtx.Queue,
		orchestrator,
		worker.Config{
			Concurrency:   appCtx.Config.Worker.Concurrency,
			PollInterval:  appCtx.Config.Worker.PollInterval,
			StaleAge:      appCtx.Config.Worker.StaleAge,
			SweepInterval: appCtx.Config.Worker.SweepInterval,
		},
		appCtx.Logger(),
	)

	slog.Info("採点ワーカーを起動します",
		"concurrency", appCtx.Config.Worker.Concurrency,
		"pollInterval", appCtx.Config.Worker.PollInterval,
	)

	if err := pool.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	slog.Info("採点ワーカーを停止しました")
	return nil
}
