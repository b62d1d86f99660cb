// Package openai provides a text generator backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/chenxu-corpus/chenxuvox/pkg/textgen"
)

// Generator implements textgen.Generator using the OpenAI API.
type Generator struct {
	client oai.Client
	model  string
}

// Compile-time interface check.
var _ textgen.Generator = (*Generator)(nil)

// config holds optional configuration for the generator.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Generator.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point
// the generator at any OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI text Generator.
func New(apiKey string, model string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Generator{client: client, model: model}, nil
}

// Name implements textgen.Generator.
func (g *Generator) Name() string { return "openai" }

// Generate implements textgen.Generator.
func (g *Generator) Generate(ctx context.Context, req textgen.Request) (*textgen.Response, error) {
	if req.UserPrompt == "" {
		return nil, fmt.Errorf("openai: user prompt must not be empty")
	}

	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(req.UserPrompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONOnly {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &textgen.Response{
		Content: resp.Choices[0].Message.Content,
		Usage: textgen.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
