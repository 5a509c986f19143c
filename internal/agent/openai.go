package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configures an OpenAIBackend.
type OpenAIOptions struct {
	APIKey string
	// Model defaults to gpt-4o.
	Model     string
	MaxTokens int64
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses the default.
	BaseURL string
}

// OpenAIBackend executes requests with the Chat Completions API.
type OpenAIBackend struct {
	client    openai.Client
	model     openai.ChatModel
	maxTokens int64
	tracker   *TokenTracker
}

// NewOpenAIBackend creates a backend for OpenAI or a compatible endpoint.
func NewOpenAIBackend(opts OpenAIOptions, tracker *TokenTracker) *OpenAIBackend {
	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	model := openai.ChatModel(opts.Model)
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if tracker == nil {
		tracker = NewTokenTracker()
	}

	return &OpenAIBackend{
		client:    openai.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   tracker,
	}
}

// Model returns the resolved model name.
func (b *OpenAIBackend) Model() string {
	return string(b.model)
}

// Execute sends the request as a system and user message pair.
func (b *OpenAIBackend) Execute(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: b.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		MaxCompletionTokens: openai.Int(b.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai call returned no choices")
	}

	b.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	content, confidence := parseConfidence(resp.Choices[0].Message.Content)
	return &Response{
		Content:    content,
		Confidence: confidence,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
	}, nil
}
