package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/internal/service"
	"chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源，跨域由 CORS 中间件控制
		},
	}
)

// ChatHandler 负责 HTTP 与 WebSocket 两种聊天入口。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
	}
}

// Chat 处理一轮非流式对话。
func (h *ChatHandler) Chat(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ChatHandler] Invalid request payload, error: %v", err)
		respondError(c, apperr.New(apperr.BadRequest, "Invalid request body"))
		return
	}

	reply, err := h.chatService.Chat(c.Request.Context(), user, req, nil)
	if err != nil {
		log.Warnf("[ChatHandler] 对话失败, user: %s, conversation: %s, error: %v", user.Username, req.ConversationID, err)
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "success", reply)
}

// wsFrame 是写回 WebSocket 客户端的帧。
type wsFrame struct {
	Type           string `json:"type,omitempty"`
	Chunk          string `json:"chunk,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Handle 处理一个 WebSocket 连接。token 通过查询参数传入，因为浏览器无法为 WebSocket 设置请求头。
func (h *ChatHandler) Handle(c *gin.Context) {
	user, err := h.userService.ResolveToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", user.Username)

	// 同一连接上未指定对话时沿用上一轮的对话
	var conversationID string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		req := parseWSMessage(message)
		if req.ConversationID == "" {
			req.ConversationID = conversationID
		}

		if err := h.streamTurn(c, conn, user, req, &conversationID); err != nil {
			log.Warnf("WebSocket 写入失败, user: %s, error: %v", user.Username, err)
			break
		}
	}
}

// streamTurn 执行一轮对话，把增量作为 chunk 帧转发，最后发送 completion 帧。
func (h *ChatHandler) streamTurn(c *gin.Context, conn *websocket.Conn, user *model.User, req service.ChatRequest, conversationID *string) error {
	var writeErr error
	streamed := false
	onDelta := func(delta string) {
		if writeErr != nil || delta == "" {
			return
		}
		streamed = true
		writeErr = writeFrame(conn, wsFrame{Chunk: delta})
	}

	reply, err := h.chatService.Chat(c.Request.Context(), user, req, onDelta)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		log.Warnf("[ChatHandler] 流式对话失败, user: %s, error: %v", user.Username, err)
		if apperr.KindOf(err) == apperr.InternalError {
			log.Errorf("[ChatHandler] 内部错误: %v", err)
		}
		return writeFrame(conn, wsFrame{
			Type:    "error",
			Error:   string(apperr.KindOf(err)),
			Message: apperr.DetailOf(err),
		})
	}

	*conversationID = reply.ConversationID
	// 补全服务失败时没有增量，把整条回复作为一个 chunk 发出
	if !streamed && reply.Reply != "" {
		if err := writeFrame(conn, wsFrame{Chunk: reply.Reply}); err != nil {
			return err
		}
	}
	return writeFrame(conn, wsFrame{Type: "completion", ConversationID: reply.ConversationID})
}

// parseWSMessage 接受纯文本或 {"message","conversation_id"} 两种格式。
func parseWSMessage(message []byte) service.ChatRequest {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var req service.ChatRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err == nil {
			return req
		}
	}
	return service.ChatRequest{Message: string(message)}
}

func writeFrame(conn *websocket.Conn, frame wsFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
