package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/autograder/internal/infra/extract"
	"github.com/jinford/autograder/internal/infra/storage"
)

// SubmissionSubmitAction は提出物を登録して採点ジョブを発行するコマンドのアクション
func SubmissionSubmitAction(ctx context.Context, cmd *cli.Command) error {
	assignmentID := cmd.Int64("assignment")
	filePath := cmd.String("file")
	envFile := cmd.String("env")

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("提出ファイルの読み込みに失敗: %w", err)
	}

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if _, err := appCtx.Store.GetAssignment(ctx, assignmentID); err != nil {
		slog.Error("課題の取得に失敗しました", "assignmentID", assignmentID, "error", err)
		return err
	}

	filename := filepath.Base(filePath)

	// テキスト抽出に失敗した提出は受け付けない
	extractor := extract.NewExtractor()
	text, err := extractor.Extract(data, filename)
	if err != nil {
		slog.Error("テキスト抽出に失敗しました", "file", filename, "error", err)
		return err
	}

	objectStore, err := storage.NewDiskStore(appCtx.Config.StorageDir)
	if err != nil {
		return fmt.Errorf("ストレージの初期化に失敗: %w", err)
	}

	storageKey, err := objectStore.Put(data, filename)
	if err != nil {
		return fmt.Errorf("提出ファイルの保存に失敗: %w", err)
	}

	submission, err := appCtx.Store.CreateSubmission(ctx, assignmentID, filename, storageKey, text)
	if err != nil {
		slog.Error("サブミッションの作成に失敗しました", "error", err)
		return err
	}

	if err := appCtx.Queue.Enqueue(ctx, submission.ID); err != nil {
		slog.Error("採点ジョブの登録に失敗しました", "submissionID", submission.ID, "error", err)
		return err
	}

	fmt.Printf("✓ 提出を受け付けました: id=%d status=%s\n", submission.ID, submission.Status)
	return nil
}

// SubmissionShowAction はサブミッションの状態を表示するコマンドのアクション
func SubmissionShowAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Int64("id")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	submission, err := appCtx.Store.GetSubmission(ctx, id)
	if err != nil {
		slog.Error("サブミッションの取得に失敗しました", "id", id, "error", err)
		return err
	}

	fmt.Printf("ID:           %d\n", submission.ID)
	fmt.Printf("AssignmentID: %d\n", submission.AssignmentID)
	fmt.Printf("Filename:     %s\n", submission.Filename)
	fmt.Printf("Status:       %s\n", submission.Status)
	fmt.Printf("CreatedAt:    %s\n", submission.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// SubmissionListAction は課題配下のサブミッション一覧を表示するコマンドのアクション
func SubmissionListAction(ctx context.Context, cmd *cli.Command) error {
	assignmentID := cmd.Int64("assignment")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	submissions, err := appCtx.Store.ListSubmissionsByAssignment(ctx, assignmentID)
	if err != nil {
		slog.Error("サブミッション一覧の取得に失敗しました", "assignmentID", assignmentID, "error", err)
		return err
	}

	if len(submissions) == 0 {
		fmt.Println("提出はまだありません")
		return nil
	}

	for _, s := range submissions {
		fmt.Printf("%d\t%s\t%s\t%s\n", s.ID, s.Filename, s.Status, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
