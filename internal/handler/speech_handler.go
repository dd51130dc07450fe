package handler

import (
	"io"
	"net/http"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SpeechHandler 负责语音合成与语音识别。
type SpeechHandler struct {
	speechService  service.SpeechService
	maxUploadBytes int64
}

// NewSpeechHandler 创建一个新的 SpeechHandler。maxUploadBytes <= 0 表示不限制上传大小。
func NewSpeechHandler(speechService service.SpeechService, maxUploadBytes int64) *SpeechHandler {
	return &SpeechHandler{speechService: speechService, maxUploadBytes: maxUploadBytes}
}

// SynthesizeRequest 是语音合成的请求体。
type SynthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize 把文本合成为 mp3 音频并以流的形式返回。
func (h *SpeechHandler) Synthesize(c *gin.Context) {
	var req SynthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[SpeechHandler] Synthesize: Invalid request payload, error: %v", err)
		respondError(c, apperr.New(apperr.BadRequest, "Text must not be empty"))
		return
	}

	audio, err := h.speechService.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	defer audio.Close()

	c.Header("Content-Disposition", `inline; filename="speech.mp3"`)
	c.DataFromReader(http.StatusOK, -1, "audio/mpeg", audio, nil)
}

// Transcribe 识别 multipart 字段 audio 中的语音。
func (h *SpeechHandler) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		log.Warnf("[SpeechHandler] Transcribe: 缺少 audio 字段, error: %v", err)
		respondError(c, apperr.New(apperr.BadRequest, "Audio file is required"))
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		respondError(c, apperr.New(apperr.BadRequest, "Audio file too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, apperr.Wrap(apperr.InternalError, "open uploaded audio", err))
		return
	}
	defer file.Close()

	var r io.Reader = file
	if h.maxUploadBytes > 0 {
		r = io.LimitReader(file, h.maxUploadBytes)
	}
	audio, err := io.ReadAll(r)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.InternalError, "read uploaded audio", err))
		return
	}

	text, err := h.speechService.Transcribe(c.Request.Context(), audio, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		log.Warnf("[SpeechHandler] Transcribe 失败, file: %s, error: %v", fileHeader.Filename, err)
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "success", gin.H{"text": text})
}
