// Package stt 封装了 Google Cloud Speech-to-Text 语音识别。
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"chatbot-go/internal/config"
)

// ErrNoSpeech 表示请求成功但音频中没有识别出任何文字。
var ErrNoSpeech = errors.New("no speech recognized")

// Client 把一段完整音频转写为文字。
type Client interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

type googleClient struct {
	recognize    recognizeFunc
	languageCode string
	closeFn      func() error
}

// NewGoogleClient 创建语音识别客户端。credentials_file 为空时使用默认凭据（GOOGLE_APPLICATION_CREDENTIALS）。
func NewGoogleClient(ctx context.Context, cfg config.STTConfig) (Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &googleClient{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		languageCode: cfg.LanguageCode,
		closeFn:      c.Close,
	}, nil
}

func (g *googleClient) Close() error {
	if g.closeFn == nil {
		return nil
	}
	return g.closeFn()
}

func (g *googleClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	lang := g.languageCode
	if lang == "" {
		lang = "en-US"
	}
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               lang,
		Encoding:                   inferEncoding(mimeType),
		EnableAutomaticPunctuation: true,
	}
	// OGG_OPUS 和 WEBM_OPUS 必须指定采样率
	if rc.Encoding == speechpb.RecognitionConfig_OGG_OPUS || rc.Encoding == speechpb.RecognitionConfig_WEBM_OPUS {
		rc.SampleRateHertz = 48000
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: rc,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoSpeech
	}
	return strings.Join(parts, " "), nil
}

// inferEncoding 根据 MIME 类型选择编码。WAV 和 FLAC 带文件头，服务端可以自行识别。
func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
