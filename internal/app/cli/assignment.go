package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/autograder/internal/core/grading"
)

// AssignmentCreateAction は課題を作成するコマンドのアクション
func AssignmentCreateAction(ctx context.Context, cmd *cli.Command) error {
	title := cmd.String("title")
	rubricJSON := cmd.String("rubric")
	rubricFile := cmd.String("rubric-file")
	envFile := cmd.String("env")

	rubric, err := loadRubric(rubricJSON, rubricFile)
	if err != nil {
		return err
	}

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	assignment, err := appCtx.Store.CreateAssignment(ctx, title, rubric)
	if err != nil {
		slog.Error("課題の作成に失敗しました", "error", err)
		return err
	}

	fmt.Printf("✓ 課題を作成しました: id=%d title=%s\n", assignment.ID, assignment.Title)
	return nil
}

// AssignmentListAction は課題一覧を表示するコマンドのアクション
func AssignmentListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	assignments, err := appCtx.Store.ListAssignments(ctx)
	if err != nil {
		slog.Error("課題一覧の取得に失敗しました", "error", err)
		return err
	}

	if len(assignments) == 0 {
		fmt.Println("課題はまだ登録されていません")
		return nil
	}

	for _, a := range assignments {
		fmt.Printf("%d\t%s\t%s\n", a.ID, a.Title, a.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// AssignmentShowAction は課題詳細を表示するコマンドのアクション
func AssignmentShowAction(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Int64("id")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	assignment, err := appCtx.Store.GetAssignment(ctx, id)
	if err != nil {
		slog.Error("課題の取得に失敗しました", "id", id, "error", err)
		return err
	}

	rubricText, err := assignment.Rubric.Indent()
	if err != nil {
		rubricText = string(assignment.Rubric)
	}

	fmt.Printf("ID:        %d\n", assignment.ID)
	fmt.Printf("Title:     %s\n", assignment.Title)
	fmt.Printf("CreatedAt: %s\n", assignment.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Rubric:\n%s\n", rubricText)
	return nil
}

// loadRubric は--rubricまたは--rubric-fileからルーブリックを読み込んで検証する
func loadRubric(rubricJSON, rubricFile string) (grading.Rubric, error) {
	var raw []byte
	switch {
	case rubricJSON != "":
		raw = []byte(rubricJSON)
	case rubricFile != "":
		data, err := os.ReadFile(rubricFile)
		if err != nil {
			return nil, fmt.Errorf("ルーブリックファイルの読み込みに失敗: %w", err)
		}
		raw = data
	default:
		return nil, fmt.Errorf("--rubric または --rubric-file のいずれかを指定してください")
	}

	var compact json.RawMessage
	if err := json.Unmarshal(raw, &compact); err != nil {
		return nil, fmt.Errorf("ルーブリックのJSON解析に失敗: %w", err)
	}

	rubric := grading.Rubric(compact)
	if err := rubric.Validate(); err != nil {
		return nil, err
	}
	return rubric, nil
}
