package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/autograder/internal/infra/postgres"
)

// MigrateAction はデータベーススキーマを作成するコマンドのアクション
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := postgres.Migrate(ctx, appCtx.DB.Pool); err != nil {
		slog.Error("マイグレーションに失敗しました", "error", err)
		return err
	}

	fmt.Println("✓ マイグレーションが完了しました")
	return nil
}
