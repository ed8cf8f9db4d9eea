package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
)

// ReferenceAddAction は参考資料をインデックス化するコマンドのアクション
func ReferenceAddAction(ctx context.Context, cmd *cli.Command) error {
	assignmentID := cmd.Int64("assignment")
	filePath := cmd.String("file")
	envFile := cmd.String("env")

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("参考資料ファイルの読み込みに失敗: %w", err)
	}

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 課題の存在を先に確認する
	if _, err := appCtx.Store.GetAssignment(ctx, assignmentID); err != nil {
		slog.Error("課題の取得に失敗しました", "assignmentID", assignmentID, "error", err)
		return err
	}

	service, err := appCtx.IndexingService(ctx)
	if err != nil {
		return err
	}

	slog.Info("参考資料のインデックス化を開始",
		"assignmentID", assignmentID,
		"file", filePath,
	)

	result, err := service.IndexReference(ctx, assignmentID, data, filepath.Base(filePath))
	if err != nil {
		slog.Error("参考資料のインデックス化に失敗しました", "error", err)
		return err
	}

	fmt.Printf("✓ 参考資料をインデックス化しました: chunks=%d storageKey=%s\n",
		result.TotalChunks, result.StorageKey)
	return nil
}

// ReferenceClearAction は課題の参考資料チャンクを全削除するコマンドのアクション
func ReferenceClearAction(ctx context.Context, cmd *cli.Command) error {
	assignmentID := cmd.Int64("assignment")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 削除はベクトルインデックスへの直接操作で完結する
	if err := appCtx.Index.DeleteByAssignment(ctx, assignmentID); err != nil {
		slog.Error("参考資料チャンクの削除に失敗しました", "assignmentID", assignmentID, "error", err)
		return err
	}

	fmt.Printf("✓ 課題 %d の参考資料チャンクを削除しました\n", assignmentID)
	return nil
}
