package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 採点LLM）
	OpenAI OpenAIConfig

	// 採点ワーカー設定
	Worker WorkerConfig

	// コンテキスト検索設定
	Retrieval RetrievalConfig

	// アップロードファイルの保存先ディレクトリ
	StorageDir string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings + 採点LLM）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	GraderModel        string  // 採点に使用するLLMモデル名
	GraderTemperature  float64 // 採点時の温度（決定性重視で低めに設定）
	GraderMaxTokens    int     // 採点レスポンスの最大トークン数
	GraderTimeout      time.Duration
	GraderMaxRetries   int // レート制限時の最大リトライ回数
}

// WorkerConfig は採点ワーカーの設定
type WorkerConfig struct {
	Concurrency   int           // 並行ワーカー数
	PollInterval  time.Duration // ジョブポーリング間隔
	StaleAge      time.Duration // grading状態で放置された採点を回収するまでの時間
	SweepInterval time.Duration // 回収スイープの実行間隔
}

// RetrievalConfig はコンテキスト検索の設定
type RetrievalConfig struct {
	TopK          int // 検索結果の上位K件
	QueryMaxChars int // クエリとして使用するサブミッション冒頭の文字数
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "autograder"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "autograder"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			GraderModel:        getEnv("GRADER_LLM_MODEL", "gpt-4o-mini"),
			GraderTemperature:  getEnvAsFloat("GRADER_LLM_TEMPERATURE", 0.3),
			GraderMaxTokens:    getEnvAsInt("GRADER_LLM_MAX_TOKENS", 2000),
			GraderTimeout:      getEnvAsDuration("GRADER_LLM_TIMEOUT", 60*time.Second),
			GraderMaxRetries:   getEnvAsInt("GRADER_LLM_MAX_RETRIES", 3),
		},
		Worker: WorkerConfig{
			Concurrency:   getEnvAsInt("WORKER_CONCURRENCY", 2),
			PollInterval:  getEnvAsDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			StaleAge:      getEnvAsDuration("WORKER_STALE_AGE", 15*time.Minute),
			SweepInterval: getEnvAsDuration("WORKER_SWEEP_INTERVAL", time.Minute),
		},
		Retrieval: RetrievalConfig{
			TopK:          getEnvAsInt("RETRIEVAL_TOP_K", 5),
			QueryMaxChars: getEnvAsInt("RETRIEVAL_QUERY_MAX_CHARS", 500),
		},
		StorageDir: getEnv("STORAGE_DIR", "/var/lib/autograder/uploads"),
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をtime.Durationとして取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
