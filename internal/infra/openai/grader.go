package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/autograder/internal/core/grading"
)

const (
	// DefaultGraderModel はデフォルトで使用するOpenAIモデル
	DefaultGraderModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	// 外部呼び出しが無制限にワーカースロットを占有しないための必須の上限
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries はレート制限エラー時のデフォルト最大リトライ回数
	DefaultMaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// GraderClient は OpenAI Chat Completions を使用した採点LLMクライアント
type GraderClient struct {
	client     openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

type graderOptions struct {
	model      string
	timeout    time.Duration
	maxRetries int
}

// GraderOption は GraderClient のオプション設定
type GraderOption func(*graderOptions)

// WithGraderModel はモデル名を上書きする
func WithGraderModel(model string) GraderOption {
	return func(o *graderOptions) {
		o.model = model
	}
}

// WithGraderTimeout はAPIコールのタイムアウトを上書きする
func WithGraderTimeout(timeout time.Duration) GraderOption {
	return func(o *graderOptions) {
		o.timeout = timeout
	}
}

// WithGraderMaxRetries はレート制限時の最大リトライ回数を上書きする
func WithGraderMaxRetries(n int) GraderOption {
	return func(o *graderOptions) {
		o.maxRetries = n
	}
}

// NewGraderClient は新しい GraderClient を作成する
func NewGraderClient(apiKey string, opts ...GraderOption) (*GraderClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := graderOptions{
		model:      DefaultGraderModel,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &GraderClient{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      options.model,
		timeout:    options.timeout,
		maxRetries: options.maxRetries,
	}, nil
}

// ModelName はモデル名を返す
func (c *GraderClient) ModelName() string {
	return c.model
}

// GenerateCompletion は採点プロンプトからテキストを生成する
// レート制限（429）はExponential Backoffでリトライし、その他のエラーは即時失敗する
func (c *GraderClient) GenerateCompletion(ctx context.Context, req grading.CompletionRequest) (grading.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return grading.CompletionResponse{}, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(req.Prompt),
			},
			Temperature: openai.Float(req.Temperature),
			// 構造化出力を要求する（フェンス除去のフォールバックはパース側に残す）
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{
					Type: "json_object",
				},
			},
		}

		if req.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return grading.CompletionResponse{}, fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return grading.CompletionResponse{}, fmt.Errorf("no completion choices returned")
		}

		return grading.CompletionResponse{
			Content:    completion.Choices[0].Message.Content,
			TokensUsed: int(completion.Usage.TotalTokens),
			Model:      string(completion.Model),
		}, nil
	}

	return grading.CompletionResponse{}, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ grading.GraderClient = (*GraderClient)(nil)
