package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/mock"
	"chatbot-go/pkg/stt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeechService_Synthesize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	tts := &mock.TTSClient{SynthesizeFn: func(_ context.Context, text string) (io.ReadCloser, error) {
		calls++
		return io.NopCloser(strings.NewReader("mp3:" + text)), nil
	}}
	svc := NewSpeechService(tts, nil)

	_, err := svc.Synthesize(ctx, "  \n")
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
	assert.Zero(t, calls, "provider must not be called for empty text")

	rc, err := svc.Synthesize(ctx, "Hello")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "mp3:Hello", string(data))

	failing := NewSpeechService(&mock.TTSClient{SynthesizeFn: func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("503")
	}}, nil)
	_, err = failing.Synthesize(ctx, "Hello")
	assert.Equal(t, apperr.ProviderUnavailable, apperr.KindOf(err))

	_, err = NewSpeechService(nil, nil).Synthesize(ctx, "Hello")
	assert.Equal(t, apperr.ProviderUnavailable, apperr.KindOf(err))
}

func TestSpeechService_Transcribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := NewSpeechService(nil, &mock.STTClient{TranscribeFn: func(_ context.Context, audio []byte, mime string) (string, error) {
		switch string(audio) {
		case "silence":
			return "", stt.ErrNoSpeech
		case "broken":
			return "", errors.New("unavailable")
		}
		return "hello world", nil
	}})

	text, err := svc.Transcribe(ctx, []byte("speech"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = svc.Transcribe(ctx, nil, "audio/wav")
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
	_, err = svc.Transcribe(ctx, []byte("silence"), "audio/wav")
	assert.Equal(t, apperr.Unrecognized, apperr.KindOf(err))
	_, err = svc.Transcribe(ctx, []byte("broken"), "audio/wav")
	assert.Equal(t, apperr.ProviderUnavailable, apperr.KindOf(err))
}
