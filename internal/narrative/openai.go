package narrative

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"tradeeval/internal/config"
)

type openAIBackend struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func newOpenAI(cfg config.NarrativeConfig) *openAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAIBackend{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens(cfg)),
	}
}

func (b *openAIBackend) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(b.maxTokens),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func maxTokens(cfg config.NarrativeConfig) int {
	if cfg.MaxTokens <= 0 {
		return 600
	}
	return cfg.MaxTokens
}
