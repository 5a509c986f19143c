package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicOptions configures an AnthropicBackend.
type AnthropicOptions struct {
	// Model is the Claude model to use. Empty means Sonnet 4.
	Model string
	// APIKey is required unless UseBedrock is set.
	APIKey    string
	MaxTokens int64
	// UseBedrock sends requests through AWS Bedrock with the default AWS
	// credential chain.
	UseBedrock bool
	// Region is the AWS region for Bedrock.
	Region string
}

// AnthropicBackend executes requests with the Anthropic Messages API.
type AnthropicBackend struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	tracker   *TokenTracker
}

// NewAnthropicBackend creates a backend for the Anthropic API or Bedrock.
func NewAnthropicBackend(opts AnthropicOptions, tracker *TokenTracker) (*AnthropicBackend, error) {
	var reqOpts []option.RequestOption

	if opts.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if opts.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
		}
		reqOpts = append(reqOpts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		if opts.APIKey == "" {
			return nil, fmt.Errorf("anthropic backend requires an API key")
		}
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}

	model := anthropic.Model(opts.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if opts.UseBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if tracker == nil {
		tracker = NewTokenTracker()
	}

	return &AnthropicBackend{
		client:    anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   tracker,
	}, nil
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profiles: us.anthropic.{model}-v1:0
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	// Already a Bedrock id or a custom model.
	return model
}

// Model returns the resolved model name.
func (b *AnthropicBackend) Model() string {
	return string(b.model)
}

// Execute sends the request as a single user message.
func (b *AnthropicBackend) Execute(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}

	b.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}

	content, confidence := parseConfidence(sb.String())
	return &Response{
		Content:    content,
		Confidence: confidence,
		TokensIn:   resp.Usage.InputTokens,
		TokensOut:  resp.Usage.OutputTokens,
	}, nil
}
