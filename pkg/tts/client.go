// Package tts 封装了文本转语音服务，使用 OpenAI 兼容的 /audio/speech 接口。
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatbot-go/internal/config"
)

// Client 把文本合成为音频流，调用方负责关闭返回的 ReadCloser。
type Client interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

type openaiClient struct {
	cfg    config.TTSConfig
	client *http.Client
}

// NewClient 创建一个新的 TTS 客户端。
func NewClient(cfg config.TTSConfig) Client {
	return &openaiClient{cfg: cfg, client: &http.Client{}}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

func (c *openaiClient) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	reqBytes, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Input:          text,
		Voice:          c.cfg.Voice,
		ResponseFormat: c.cfg.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal speech request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call speech api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp.Body, nil
}
