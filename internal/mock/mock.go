// Package mock provides test doubles for external providers using function fields.
package mock

import (
	"context"
	"io"

	"chatbot-go/pkg/llm"
	"chatbot-go/pkg/stt"
	"chatbot-go/pkg/tasks"
	"chatbot-go/pkg/tts"
)

// Interface compliance checks.
var (
	_ llm.Client = (*LLMClient)(nil)
	_ tts.Client = (*TTSClient)(nil)
	_ stt.Client = (*STTClient)(nil)
)

// LLMClient is a test double for llm.Client.
// Set CompleteFn before calling Complete.
type LLMClient struct {
	CompleteFn func(ctx context.Context, messages []llm.Message, onDelta llm.DeltaFunc) llm.Result
}

// Complete delegates to CompleteFn.
func (c *LLMClient) Complete(ctx context.Context, messages []llm.Message, onDelta llm.DeltaFunc) llm.Result {
	return c.CompleteFn(ctx, messages, onDelta)
}

// TTSClient is a test double for tts.Client.
type TTSClient struct {
	SynthesizeFn func(ctx context.Context, text string) (io.ReadCloser, error)
}

// Synthesize delegates to SynthesizeFn.
func (c *TTSClient) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	return c.SynthesizeFn(ctx, text)
}

// STTClient is a test double for stt.Client.
type STTClient struct {
	TranscribeFn func(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Transcribe delegates to TranscribeFn.
func (c *STTClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return c.TranscribeFn(ctx, audio, mimeType)
}

// EventPublisher is a test double for the message event publisher.
type EventPublisher struct {
	PublishFn func(ctx context.Context, event tasks.MessageEvent) error
}

// Publish delegates to PublishFn.
func (p *EventPublisher) Publish(ctx context.Context, event tasks.MessageEvent) error {
	return p.PublishFn(ctx, event)
}
