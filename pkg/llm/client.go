// Package llm 封装了对大语言模型补全服务的调用。
package llm

import (
	"context"
	"fmt"

	"chatbot-go/internal/config"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeltaFunc 接收流式返回的每个分块，可以为 nil。
type DeltaFunc func(chunk string)

// Result 是一次补全的结果：成功时为 Ok(text)，失败时为 ProviderError(detail)。
// 补全服务的失败不是程序错误，调用方据此生成一条说明性的回复。
type Result struct {
	Text   string
	Detail string
	failed bool
}

func Ok(text string) Result { return Result{Text: text} }

func ProviderError(detail string) Result { return Result{Detail: detail, failed: true} }

// Failed 表示补全服务返回了错误。
func (r Result) Failed() bool { return r.failed }

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以完整的有序消息列表调用补全服务。
	Complete(ctx context.Context, messages []Message, onDelta DeltaFunc) Result
}

// GenerationParams 控制生成行为，nil 字段不发送。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// paramsFromConfig 复制配置中显式给出的生成参数。temperature 为 0 时照常发送，max_tokens 不大于 0 时不发送。
func paramsFromConfig(cfg config.LLMGenerationConfig) GenerationParams {
	var gen GenerationParams
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		gen.Temperature = &t
	}
	if cfg.TopP != nil {
		p := *cfg.TopP
		gen.TopP = &p
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens > 0 {
		m := *cfg.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg), nil
	case "langchain":
		return NewLangchainClient(cfg)
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
