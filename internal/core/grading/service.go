package grading

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

const (
	// DefaultTemperature は採点呼び出しのデフォルト温度（創造性より決定性を優先）
	DefaultTemperature = 0.3

	// DefaultMaxTokens は採点レスポンスのデフォルト上限トークン数
	DefaultMaxTokens = 2000

	// DefaultSubmissionTokenLimit はプロンプトに埋め込むサブミッションの上限トークン数
	DefaultSubmissionTokenLimit = 12000
)

// TokenCounter はプロンプト予算の管理インターフェース
type TokenCounter interface {
	// CountTokens はテキストのトークン数をカウントする
	CountTokens(text string) int

	// TrimToTokenLimit はテキストを指定トークン数に収まるようトリミングする
	TrimToTokenLimit(text string, maxTokens int) string
}

// Service はルーブリックと検索コンテキストに基づくLLM採点を提供する
// 内部でリトライはしない（リトライポリシーはクライアント実装とオーケストレーターの責務）
type Service struct {
	client               GraderClient
	tokenCounter         TokenCounter
	temperature          float64
	maxTokens            int
	submissionTokenLimit int
	logger               *slog.Logger
}

type gradingOptions struct {
	tokenCounter         TokenCounter
	temperature          float64
	maxTokens            int
	submissionTokenLimit int
	logger               *slog.Logger
}

// Option は Service のオプション設定
type Option func(*gradingOptions)

// WithTemperature は採点呼び出しの温度を上書きする
func WithTemperature(t float64) Option {
	return func(o *gradingOptions) {
		o.temperature = t
	}
}

// WithMaxTokens はレスポンスの上限トークン数を上書きする
func WithMaxTokens(n int) Option {
	return func(o *gradingOptions) {
		o.maxTokens = n
	}
}

// WithTokenCounter はサブミッションのトリミングに使用するTokenCounterを設定する
func WithTokenCounter(tc TokenCounter) Option {
	return func(o *gradingOptions) {
		o.tokenCounter = tc
	}
}

// WithSubmissionTokenLimit はサブミッションの上限トークン数を上書きする
func WithSubmissionTokenLimit(n int) Option {
	return func(o *gradingOptions) {
		o.submissionTokenLimit = n
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(o *gradingOptions) {
		o.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(client GraderClient, opts ...Option) *Service {
	options := gradingOptions{
		temperature:          DefaultTemperature,
		maxTokens:            DefaultMaxTokens,
		submissionTokenLimit: DefaultSubmissionTokenLimit,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		client:               client,
		tokenCounter:         options.tokenCounter,
		temperature:          options.temperature,
		maxTokens:            options.maxTokens,
		submissionTokenLimit: options.submissionTokenLimit,
		logger:               options.logger,
	}
}

// Grade はサブミッションをルーブリックと検索コンテキストに基づいて採点する
// 生成バックエンドの障害はErrGeneration、構造検証の失敗はMalformedResponseErrorになる
func (s *Service) Grade(ctx context.Context, gctx *Context) (*StructuredGrade, error) {
	if gctx == nil || gctx.SubmissionText == "" {
		return nil, fmt.Errorf("submission text is required")
	}
	if err := gctx.Rubric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rubric: %w", err)
	}

	// 長大なサブミッションはプロンプト予算に収まるようトリミングする
	if s.tokenCounter != nil {
		if count := s.tokenCounter.CountTokens(gctx.SubmissionText); count > s.submissionTokenLimit {
			s.logger.Warn("サブミッションをトークン上限にトリミングします",
				"tokens", count,
				"limit", s.submissionTokenLimit,
			)
			trimmed := *gctx
			trimmed.SubmissionText = s.tokenCounter.TrimToTokenLimit(gctx.SubmissionText, s.submissionTokenLimit)
			gctx = &trimmed
		}
	}

	prompt, err := BuildGradingPrompt(gctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build grading prompt: %w", err)
	}

	resp, err := s.client.GenerateCompletion(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	grade, err := ParseStructuredGrade(resp.Content)
	if err != nil {
		// プロンプト/コントラクトのドリフト診断のため、生出力を残す
		s.logger.Error("採点レスポンスの検証に失敗しました",
			"error", err,
			"model", resp.Model,
			"rawResponse", resp.Content,
		)
		return nil, err
	}

	s.logger.Info("採点が完了しました",
		"score", grade.Score,
		"criteria", len(grade.Breakdown),
		"citations", len(grade.Citations),
		"tokensUsed", resp.TokensUsed,
	)

	return grade, nil
}
