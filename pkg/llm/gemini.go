package llm

import (
	"context"
	"fmt"
	"strings"

	"chatbot-go/internal/config"

	"google.golang.org/genai"
)

// geminiClient 调用 Google Gemini API。system 消息合并为 SystemInstruction。
type geminiClient struct {
	client *genai.Client
	model  string
	gen    GenerationParams
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &geminiClient{client: gc, model: cfg.Model, gen: paramsFromConfig(cfg.Generation)}, nil
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message, onDelta DeltaFunc) Result {
	system, contents := convertGeminiMessages(messages)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if c.gen.Temperature != nil {
		t := float32(*c.gen.Temperature)
		cfg.Temperature = &t
	}
	if c.gen.TopP != nil {
		p := float32(*c.gen.TopP)
		cfg.TopP = &p
	}
	if c.gen.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*c.gen.MaxTokens)
	}

	var sb strings.Builder
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg) {
		if err != nil {
			return ProviderError(err.Error())
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if onDelta != nil {
			onDelta(chunk)
		}
	}
	return Ok(sb.String())
}

// convertGeminiMessages 拆出 system 文本，assistant 映射为 Gemini 的 "model" 角色。
func convertGeminiMessages(messages []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return strings.Join(system, "\n\n"), contents
}
