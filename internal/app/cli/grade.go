package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/autograder/internal/core/grading"
)

// GradeShowAction はサブミッションの採点結果を表示するコマンドのアクション
func GradeShowAction(ctx context.Context, cmd *cli.Command) error {
	submissionID := cmd.Int64("submission")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	grade, err := appCtx.Store.GetGradeBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, grading.ErrGradeNotFound) {
			// 未採点の場合はサブミッションの状態を案内する
			submission, serr := appCtx.Store.GetSubmission(ctx, submissionID)
			if serr != nil {
				return err
			}
			fmt.Printf("サブミッション %d はまだ採点されていません（status=%s）\n",
				submissionID, submission.Status)
			return nil
		}
		slog.Error("採点結果の取得に失敗しました", "submissionID", submissionID, "error", err)
		return err
	}

	out, err := json.MarshalIndent(grade, "", "  ")
	if err != nil {
		return fmt.Errorf("採点結果の整形に失敗: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
