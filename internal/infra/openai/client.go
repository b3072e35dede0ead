package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/00-167cm/RAG-chatbot/internal/core/answer"
	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
)

const (
	// DefaultChatModel はデフォルトで使用するOpenAIモデル
	DefaultChatModel = "gpt-4o-mini"

	// DefaultTemperature は回答生成のデフォルト温度
	DefaultTemperature = 0.1

	// DefaultTimeout は非ストリーミングAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

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

// Client は OpenAI Chat Completions API を使用したチャットクライアント実装
// 回答のストリーミング生成とチャットタイトルの生成を担う
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

type clientOptions struct {
	model       string
	temperature float64
	timeout     time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) ClientOption {
	return func(o *clientOptions) {
		o.model = model
	}
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) ClientOption {
	return func(o *clientOptions) {
		o.temperature = temperature
	}
}

// WithTimeout は非ストリーミング呼び出しのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultChatModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		timeout:     options.timeout,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// StreamChat は回答をストリーミング生成する
// トークンが届くたびに onToken を呼び出し、完了後に全文を返す
// エラー時は途中まで生成できた本文と共にエラーを返す
func (c *Client) StreamChat(ctx context.Context, messages []answer.ChatMessage, onToken func(token string) error) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    toMessageParams(messages),
		Temperature: openai.Float(c.temperature),
	}

	var full strings.Builder
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, attempt); err != nil {
				return full.String(), err
			}
		}

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if onToken != nil {
				if err := onToken(delta); err != nil {
					_ = stream.Close()
					return full.String(), err
				}
			}
		}

		err := stream.Err()
		_ = stream.Close()
		if err == nil {
			return full.String(), nil
		}
		lastErr = err

		// 一度でもトークンを送出した後はリトライしない
		if full.Len() > 0 || !isRateLimitError(err) {
			return full.String(), fmt.Errorf("OpenAI streaming failed: %w", err)
		}
	}

	return full.String(), fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// GenerateTitle は会話の最初のやり取りからタイトルを生成する
// 空白除去や文字数制限は呼び出し側で行う
func (c *Client) GenerateTitle(ctx context.Context, messages []*conversation.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    toTitleParams(messages),
		Temperature: openai.Float(c.temperature),
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// toMessageParams はチャットメッセージをAPIのメッセージ形式へ変換する
func toMessageParams(messages []answer.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case answer.ChatRoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case answer.ChatRoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}

// toTitleParams はタイトル生成用のメッセージ列を構築する
// システムプロンプトの後に会話の冒頭をそのままのロールで並べる
func toTitleParams(messages []*conversation.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	params = append(params, openai.SystemMessage(conversation.SystemPromptTitle))
	for _, msg := range messages {
		if msg.Role == conversation.RoleAssistant {
			params = append(params, openai.AssistantMessage(msg.Content))
			continue
		}
		params = append(params, openai.UserMessage(msg.Content))
	}
	return params
}

// waitBackoff はリトライ前のExponential Backoff待機を行う
func waitBackoff(ctx context.Context, attempt int) error {
	backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
	if backoffDuration > MaxBackoff {
		backoffDuration = MaxBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoffDuration):
	}
	return nil
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
var (
	_ answer.ChatClient        = (*Client)(nil)
	_ conversation.TitleClient = (*Client)(nil)
)
