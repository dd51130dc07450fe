package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"chatbot-go/internal/apperr"
	"chatbot-go/pkg/log"
	"chatbot-go/pkg/stt"
	"chatbot-go/pkg/tts"
)

// SpeechService 包装了语音合成与识别服务。
type SpeechService interface {
	// Synthesize 返回 audio/mpeg 音频流，调用方负责关闭。
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type speechService struct {
	tts tts.Client
	stt stt.Client
}

// NewSpeechService 创建一个新的 SpeechService。未配置的一侧传 nil。
func NewSpeechService(ttsClient tts.Client, sttClient stt.Client) SpeechService {
	return &speechService{tts: ttsClient, stt: sttClient}
}

func (s *speechService) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.BadRequest, "Text must not be empty")
	}
	if s.tts == nil {
		return nil, apperr.New(apperr.ProviderUnavailable, "Speech synthesis is not configured")
	}
	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		log.Errorf("[SpeechService] 语音合成失败: %v", err)
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "Speech synthesis unavailable", err)
	}
	return audio, nil
}

func (s *speechService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", apperr.New(apperr.BadRequest, "Audio must not be empty")
	}
	if s.stt == nil {
		return "", apperr.New(apperr.ProviderUnavailable, "Speech recognition is not configured")
	}
	text, err := s.stt.Transcribe(ctx, audio, mimeType)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return "", apperr.Wrap(apperr.Unrecognized, "Could not understand audio", err)
		}
		log.Errorf("[SpeechService] 语音识别失败: %v", err)
		return "", apperr.Wrap(apperr.ProviderUnavailable, "Speech recognition unavailable", err)
	}
	return text, nil
}
