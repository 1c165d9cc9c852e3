package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxRetries        = 5
	DefaultRequestTimeout    = 75 * time.Second
	DefaultHTTPClientTimeout = 75 * time.Second
)

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// SDK client options.
	MaxRetries     int
	RequestTimeout time.Duration
	MaxTokens      int64
}

func (c ChatConfig) withDefaults() ChatConfig {
	out := c
	if strings.TrimSpace(out.BaseURL) == "" {
		out.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = DefaultModel
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	return out
}

func (c ChatConfig) WithModel(model string) ChatConfig {
	model = strings.TrimSpace(model)
	if model != "" {
		c.Model = model
	}
	return c
}

func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPClientTimeout}
}

// ChatCompletion performs a single chat-completion call and returns the
// first choice's text plus its finish reason ("length" signals truncation).
func ChatCompletion(
	ctx context.Context,
	httpClient *http.Client,
	cfg ChatConfig,
	messages []openaigo.ChatCompletionMessageParamUnion,
) (content string, finishReason string, err error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return "", "", fmt.Errorf("api key is required")
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	client := openaigo.NewClient(
		option.WithBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.RequestTimeout),
	)

	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(strings.TrimSpace(cfg.Model)),
		Messages: messages,
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openaigo.Int(cfg.MaxTokens)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("llm returned empty choices")
	}
	choice := resp.Choices[0]
	return strings.TrimSpace(choice.Message.Content), string(choice.FinishReason), nil
}
