package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chatbot-go/internal/mock"
	"chatbot-go/internal/model"
	"chatbot-go/internal/repository"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/database"
	"chatbot-go/pkg/llm"
	"chatbot-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testApp struct {
	db         *gorm.DB
	router     *gin.Engine
	ttsCalls   atomic.Int32
	transcribe func(audio []byte, mimeType string) (string, error)
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	app := &testApp{db: db}
	cache := repository.NewMemorySessionCache(100, 0)
	users := service.NewUserService(repository.NewUserRepository(db), repository.NewMemoryTokenBlacklist(),
		token.NewJWTManager("test-secret", 1, 7))
	convs := service.NewConversationService(repository.NewConversationRepository(db), cache, nil, "You are a test assistant.")
	llmClient := &mock.LLMClient{CompleteFn: func(_ context.Context, msgs []llm.Message, onDelta llm.DeltaFunc) llm.Result {
		reply := "echo: " + msgs[len(msgs)-1].Content
		if onDelta != nil {
			onDelta("echo: ")
			onDelta(msgs[len(msgs)-1].Content)
		}
		return llm.Ok(reply)
	}}
	ttsClient := &mock.TTSClient{SynthesizeFn: func(_ context.Context, text string) (io.ReadCloser, error) {
		app.ttsCalls.Add(1)
		return io.NopCloser(strings.NewReader("ID3-" + text)), nil
	}}
	sttClient := &mock.STTClient{TranscribeFn: func(_ context.Context, audio []byte, mimeType string) (string, error) {
		if app.transcribe != nil {
			return app.transcribe(audio, mimeType)
		}
		return "hello world", nil
	}}

	app.router = NewRouter(RouterDeps{
		UserService:         users,
		ConversationService: convs,
		ChatService:         service.NewChatService(convs, cache, llmClient, nil, time.Minute),
		SpeechService:       service.NewSpeechService(ttsClient, sttClient),
		SearchService:       service.NewSearchService(nil),
		AllowedOrigins:      []string{"http://localhost:3000"},
		MaxUploadBytes:      1 << 20,
	})
	return app
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) do(t *testing.T, method, path, bearer string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (a *testApp) doJSON(t *testing.T, method, path, bearer string, payload interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return a.do(t, method, path, bearer, body, "application/json")
}

func (a *testApp) register(t *testing.T, username string) {
	t.Helper()
	rec, _ := a.doJSON(t, http.MethodPost, "/register", "", gin.H{
		"username": username, "email": username + "@example.com", "password": "pw123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testApp) login(t *testing.T, username string) TokenResponse {
	t.Helper()
	form := url.Values{"username": {username}, "password": {"pw123"}}
	rec, env := a.do(t, http.MethodPost, "/token", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	return tok
}

func (a *testApp) countConversations(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, a.db.Model(&model.Conversation{}).Count(&n).Error)
	return n
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec, _ := app.doJSON(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginChatListMessages(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	app.register(t, "alice")
	tok := app.login(t, "alice")
	assert.Equal(t, "bearer", tok.TokenType)
	assert.NotEmpty(t, tok.RefreshToken)

	rec, env := app.doJSON(t, http.MethodPost, "/chat", tok.AccessToken, gin.H{"message": "Hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply service.ChatReply
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	assert.Equal(t, "echo: Hi", reply.Reply)
	require.NotEmpty(t, reply.ConversationID)

	rec, env = app.doJSON(t, http.MethodGet, "/conversations/"+reply.ConversationID+"/messages", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msgs []model.MessageView
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are a test assistant.", msgs[0].Content)
	assert.Equal(t, model.RoleUser, msgs[1].Role)
	assert.Equal(t, "Hi", msgs[1].Content)
	assert.Equal(t, model.RoleAssistant, msgs[2].Role)

	rec, env = app.doJSON(t, http.MethodGet, "/conversations", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.ConversationSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, reply.ConversationID, list[0].ConversationID)
	assert.Equal(t, "Hi", list[0].Title)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")

	rec, env := app.doJSON(t, http.MethodPost, "/register", "", gin.H{
		"username": "alice", "email": "other@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DuplicateUser", env.Error)
}

func TestRegister_MissingFields(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec, env := app.doJSON(t, http.MethodPost, "/register", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", env.Error)
}

func TestToken_WrongPassword(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")

	form := url.Values{"username": {"alice"}, "password": {"nope"}}
	rec, env := app.do(t, http.MethodPost, "/token", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "InvalidCredentials", env.Error)
}

func TestChat_BadTokenCreatesNothing(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec, env := app.doJSON(t, http.MethodPost, "/chat", "garbage", gin.H{"message": "Hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", env.Error)

	rec, _ = app.doJSON(t, http.MethodPost, "/chat", "", gin.H{"message": "Hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int64(0), app.countConversations(t))
}

func TestChat_EmptyMessage(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	tok := app.login(t, "alice")

	rec, env := app.doJSON(t, http.MethodPost, "/chat", tok.AccessToken, gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", env.Error)
	assert.Equal(t, int64(0), app.countConversations(t))
}

func TestConversation_ForeignDeleteIsNotFound(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	app.register(t, "mallory")
	alice := app.login(t, "alice")
	mallory := app.login(t, "mallory")

	_, env := app.doJSON(t, http.MethodPost, "/chat", alice.AccessToken, gin.H{"message": "secret"})
	var reply service.ChatReply
	require.NoError(t, json.Unmarshal(env.Data, &reply))

	rec, env := app.doJSON(t, http.MethodDelete, "/conversations/"+reply.ConversationID, mallory.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", env.Error)

	rec, _ = app.doJSON(t, http.MethodGet, "/conversations/"+reply.ConversationID+"/messages", mallory.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = app.doJSON(t, http.MethodGet, "/conversations/"+reply.ConversationID+"/messages", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []model.MessageView
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	assert.Len(t, msgs, 3)
}

func TestConversation_RenameAndDelete(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	tok := app.login(t, "alice")

	_, env := app.doJSON(t, http.MethodPost, "/chat", tok.AccessToken, gin.H{"message": "Hi"})
	var reply service.ChatReply
	require.NoError(t, json.Unmarshal(env.Data, &reply))

	rec, env := app.doJSON(t, http.MethodPut, "/conversations/"+reply.ConversationID, tok.AccessToken, gin.H{"title": "  Renamed  "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var renamed struct {
		ConversationID string `json:"conversation_id"`
		Title          string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &renamed))
	assert.Equal(t, reply.ConversationID, renamed.ConversationID)
	assert.Equal(t, "Renamed", renamed.Title)

	_, env = app.doJSON(t, http.MethodGet, "/conversations", tok.AccessToken, nil)
	var list []model.ConversationSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Renamed", list[0].Title)

	rec, _ = app.doJSON(t, http.MethodDelete, "/conversations/"+reply.ConversationID, tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), app.countConversations(t))

	rec, _ = app.doJSON(t, http.MethodPut, "/conversations/missing", tok.AccessToken, gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	tok := app.login(t, "alice")

	rec, env := app.doJSON(t, http.MethodGet, "/users/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile model.UserProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "alice", profile.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	rec, _ = app.doJSON(t, http.MethodPost, "/logout", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = app.doJSON(t, http.MethodGet, "/users/me", tok.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	tok := app.login(t, "alice")

	rec, env := app.doJSON(t, http.MethodPost, "/token/refresh", "", gin.H{"refresh_token": tok.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &next))

	rec, _ = app.doJSON(t, http.MethodGet, "/users/me", next.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 旧的 refresh token 已经作废
	rec, _ = app.doJSON(t, http.MethodPost, "/token/refresh", "", gin.H{"refresh_token": tok.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// access token 不能用于刷新
	rec, _ = app.doJSON(t, http.MethodPost, "/token/refresh", "", gin.H{"refresh_token": next.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec, env := app.doJSON(t, http.MethodPost, "/synthesize", "", gin.H{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", env.Error)
	assert.Equal(t, int32(0), app.ttsCalls.Load())

	rec, _ = app.doJSON(t, http.MethodPost, "/synthesize", "", gin.H{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3-hello", rec.Body.String())
	assert.Equal(t, int32(1), app.ttsCalls.Load())
}

func multipartAudio(t *testing.T, field string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "clip.wav")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestTranscribe(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	body, ct := multipartAudio(t, "audio", []byte("RIFF....WAVE"))
	rec, env := app.do(t, http.MethodPost, "/transcribe", "", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "hello world", out.Text)

	body, ct = multipartAudio(t, "file", []byte("RIFF"))
	rec, env = app.do(t, http.MethodPost, "/transcribe", "", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", env.Error)
}

func TestTranscribe_TooLarge(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	body, ct := multipartAudio(t, "audio", bytes.Repeat([]byte{1}, (1<<20)+1))
	rec, env := app.do(t, http.MethodPost, "/transcribe", "", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", env.Error)
}

func TestSearch_NotConfigured(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	tok := app.login(t, "alice")

	rec, env := app.doJSON(t, http.MethodGet, "/conversations/search?q=hello", tok.AccessToken, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ProviderUnavailable", env.Error)
}

func TestChatWebsocket_StreamsChunks(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.register(t, "alice")
	tok := app.login(t, "alice")

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?token=" + url.QueryEscape(tok.AccessToken)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrames := func() []wsFrame {
		var frames []wsFrame
		for {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
			var f wsFrame
			require.NoError(t, conn.ReadJSON(&f))
			frames = append(frames, f)
			if f.Type == "completion" || f.Type == "error" {
				return frames
			}
		}
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("Hi")))
	frames := readFrames()
	require.Len(t, frames, 3)
	assert.Equal(t, "echo: ", frames[0].Chunk)
	assert.Equal(t, "Hi", frames[1].Chunk)
	completion := frames[2]
	require.NotEmpty(t, completion.ConversationID)

	// 未指定 conversation_id 时沿用同一个对话
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"again"}`)))
	frames = readFrames()
	assert.Equal(t, completion.ConversationID, frames[len(frames)-1].ConversationID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("   ")))
	frames = readFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "BadRequest", frames[0].Error)

	var n int64
	require.NoError(t, app.db.Model(&model.Message{}).Count(&n).Error)
	assert.Equal(t, int64(5), n)
}

func TestChatWebsocket_RejectsBadToken(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
