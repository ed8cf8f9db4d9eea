package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/autograder/internal/core/grading"
	"github.com/jinford/autograder/internal/core/indexing"
	"github.com/jinford/autograder/internal/core/retrieval"
	"github.com/jinford/autograder/internal/infra/extract"
	infraopenai "github.com/jinford/autograder/internal/infra/openai"
	"github.com/jinford/autograder/internal/infra/postgres"
	"github.com/jinford/autograder/internal/infra/storage"
	"github.com/jinford/autograder/internal/platform/logger"
	"github.com/jinford/autograder/pkg/config"
	"github.com/jinford/autograder/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config *config.Config
	DB     *db.DB
	Store  *postgres.Store
	Queue  *postgres.JobQueue
	Index  *postgres.VectorIndex

	log *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	return &AppContext{
		Config: cfg,
		DB:     database,
		Store:  postgres.NewStore(database.Pool),
		Queue:  postgres.NewJobQueue(database.Pool),
		Index:  postgres.NewVectorIndex(database.Pool),
		log:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.DB != nil {
		ac.DB.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.log != nil {
		return ac.log
	}
	return slog.Default()
}

// Embedder はOpenAI Embedderを作成する（APIキー必須）
func (ac *AppContext) Embedder() (*infraopenai.Embedder, error) {
	if ac.Config.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY が設定されていません")
	}
	return infraopenai.NewEmbedder(
		ac.Config.OpenAI.APIKey,
		infraopenai.WithEmbeddingModel(ac.Config.OpenAI.EmbeddingModel),
		infraopenai.WithEmbeddingDimension(ac.Config.OpenAI.EmbeddingDimension),
	), nil
}

// IndexingService は参考資料インデックス化サービスを組み立てる
func (ac *AppContext) IndexingService(ctx context.Context) (*indexing.Service, error) {
	embedder, err := ac.Embedder()
	if err != nil {
		return nil, err
	}

	// Embedding次元とスキーマ次元の不一致は書き込み前に検出する
	if err := ac.Index.EnsureSchema(ctx, embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ベクトルインデックスの初期化に失敗: %w", err)
	}

	store, err := storage.NewDiskStore(ac.Config.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("ストレージの初期化に失敗: %w", err)
	}

	return indexing.NewService(
		ac.Index,
		embedder,
		extract.NewExtractor(),
		store,
		indexing.WithServiceLogger(ac.Logger()),
	), nil
}

// Retriever はコンテキスト検索サービスを組み立てる
func (ac *AppContext) Retriever() (*retrieval.Retriever, error) {
	embedder, err := ac.Embedder()
	if err != nil {
		return nil, err
	}

	return retrieval.NewRetriever(
		ac.Index,
		embedder,
		retrieval.WithQueryMaxChars(ac.Config.Retrieval.QueryMaxChars),
		retrieval.WithRetrieverLogger(ac.Logger()),
	), nil
}

// Orchestrator は採点ジョブのオーケストレーターを組み立てる
func (ac *AppContext) Orchestrator() (*grading.Orchestrator, error) {
	retriever, err := ac.Retriever()
	if err != nil {
		return nil, err
	}

	graderClient, err := infraopenai.NewGraderClient(
		ac.Config.OpenAI.APIKey,
		infraopenai.WithGraderModel(ac.Config.OpenAI.GraderModel),
		infraopenai.WithGraderTimeout(ac.Config.OpenAI.GraderTimeout),
		infraopenai.WithGraderMaxRetries(ac.Config.OpenAI.GraderMaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("採点クライアントの初期化に失敗: %w", err)
	}

	tokenCounter, err := infraopenai.NewTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("トークンカウンターの初期化に失敗: %w", err)
	}

	graderService := grading.NewService(
		graderClient,
		grading.WithTemperature(ac.Config.OpenAI.GraderTemperature),
		grading.WithMaxTokens(ac.Config.OpenAI.GraderMaxTokens),
		grading.WithTokenCounter(tokenCounter),
		grading.WithLogger(ac.Logger()),
	)

	return grading.NewOrchestrator(
		ac.Store,
		retriever,
		graderService,
		grading.WithTopK(ac.Config.Retrieval.TopK),
		grading.WithOrchestratorLogger(ac.Logger()),
	), nil
}
