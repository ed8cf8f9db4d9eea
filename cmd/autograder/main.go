package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/autograder/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		}
	}

	app := &cli.Command{
		Name:  "autograder",
		Usage: "参考資料に基づく提出物の自動採点システム",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "データベーススキーマを作成",
				Flags: []cli.Flag{
					envFlag(),
				},
				Action: appcli.MigrateAction,
			},
			{
				Name:  "assignment",
				Usage: "課題管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "課題を作成",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "title",
								Usage:    "課題のタイトル",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "rubric",
								Usage: "ルーブリックJSON文字列",
							},
							&cli.StringFlag{
								Name:  "rubric-file",
								Usage: "ルーブリックJSONファイルパス",
							},
						},
						Action: appcli.AssignmentCreateAction,
					},
					{
						Name:  "list",
						Usage: "課題一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
						},
						Action: appcli.AssignmentListAction,
					},
					{
						Name:  "show",
						Usage: "課題詳細を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "id",
								Usage:    "課題ID",
								Required: true,
							},
						},
						Action: appcli.AssignmentShowAction,
					},
				},
			},
			{
				Name:  "reference",
				Usage: "参考資料管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "参考資料をインデックス化",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "assignment",
								Usage:    "課題ID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "参考資料ファイルパス（PDF/DOCX/TXT）",
								Required: true,
							},
						},
						Action: appcli.ReferenceAddAction,
					},
					{
						Name:  "clear",
						Usage: "課題の参考資料チャンクを全削除",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "assignment",
								Usage:    "課題ID",
								Required: true,
							},
						},
						Action: appcli.ReferenceClearAction,
					},
				},
			},
			{
				Name:  "submission",
				Usage: "提出物管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "submit",
						Usage: "提出物を登録して採点ジョブを発行",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "assignment",
								Usage:    "課題ID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "提出ファイルパス（PDF/DOCX/TXT）",
								Required: true,
							},
						},
						Action: appcli.SubmissionSubmitAction,
					},
					{
						Name:  "show",
						Usage: "サブミッションの採点状態を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "id",
								Usage:    "サブミッションID",
								Required: true,
							},
						},
						Action: appcli.SubmissionShowAction,
					},
					{
						Name:  "list",
						Usage: "課題配下のサブミッション一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "assignment",
								Usage:    "課題ID",
								Required: true,
							},
						},
						Action: appcli.SubmissionListAction,
					},
				},
			},
			{
				Name:  "grade",
				Usage: "採点結果コマンド",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "サブミッションの採点結果を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.Int64Flag{
								Name:     "submission",
								Usage:    "サブミッションID",
								Required: true,
							},
						},
						Action: appcli.GradeShowAction,
					},
				},
			},
			{
				Name:  "worker",
				Usage: "採点ワーカーコマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "採点ワーカーを起動",
						Flags: []cli.Flag{
							envFlag(),
						},
						Action: appcli.WorkerRunAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
