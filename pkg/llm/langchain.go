package llm

import (
	"context"
	"fmt"

	"chatbot-go/internal/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// langchainClient 通过 langchaingo 的 OpenAI 兼容实现调用补全服务。
type langchainClient struct {
	llm llms.Model
	gen GenerationParams
}

func NewLangchainClient(cfg config.LLMConfig) (Client, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain llm: %w", err)
	}
	return &langchainClient{llm: llm, gen: paramsFromConfig(cfg.Generation)}, nil
}

func (c *langchainClient) Complete(ctx context.Context, messages []Message, onDelta DeltaFunc) Result {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(langchainRole(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if c.gen.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*c.gen.Temperature))
	}
	if c.gen.TopP != nil {
		opts = append(opts, llms.WithTopP(*c.gen.TopP))
	}
	if c.gen.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*c.gen.MaxTokens))
	}
	if onDelta != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onDelta(string(chunk))
			return nil
		}))
	}

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return ProviderError(err.Error())
	}
	if len(resp.Choices) == 0 {
		return ProviderError("empty response")
	}
	return Ok(resp.Choices[0].Content)
}

func langchainRole(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
