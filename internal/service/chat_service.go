package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/internal/repository"
	"chatbot-go/pkg/llm"
	"chatbot-go/pkg/log"
	"chatbot-go/pkg/tasks"

	"github.com/google/uuid"
)

const (
	// titleMaxRunes 是自动生成标题时保留的最大字符数。
	titleMaxRunes = 50
	// providerErrorPrefix 是补全服务失败时回复的前缀。
	providerErrorPrefix = "Error with completion provider: "
)

// EventPublisher 发布消息事件，用于异步建立历史索引。
type EventPublisher interface {
	Publish(ctx context.Context, event tasks.MessageEvent) error
}

// EventPublisherFunc 让普通函数（例如 pipeline.Processor.Process）作为 EventPublisher 使用。
type EventPublisherFunc func(ctx context.Context, event tasks.MessageEvent) error

func (f EventPublisherFunc) Publish(ctx context.Context, event tasks.MessageEvent) error {
	return f(ctx, event)
}

// ChatRequest 是一轮对话的输入。Role 为空时视为 user。
type ChatRequest struct {
	Message        string `json:"message"`
	Role           string `json:"role,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatReply 是一轮对话的输出。
type ChatReply struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Chat 执行一轮对话：记录用户消息、调用补全服务、记录回复。onDelta 可以为 nil。
	Chat(ctx context.Context, user *model.User, req ChatRequest, onDelta llm.DeltaFunc) (*ChatReply, error)
}

type chatService struct {
	conversations ConversationService
	cache         repository.SessionCache
	llmClient     llm.Client
	events        EventPublisher
	timeout       time.Duration
}

// NewChatService 创建一个新的 ChatService 实例。events 可以为 nil，timeout 为 0 表示不限时。
func NewChatService(conversations ConversationService, cache repository.SessionCache, llmClient llm.Client, events EventPublisher, timeout time.Duration) ChatService {
	return &chatService{
		conversations: conversations,
		cache:         cache,
		llmClient:     llmClient,
		events:        events,
		timeout:       timeout,
	}
}

func (s *chatService) Chat(ctx context.Context, user *model.User, req ChatRequest, onDelta llm.DeltaFunc) (*ChatReply, error) {
	// 1. 校验输入，此时尚未产生任何写入
	content := strings.TrimSpace(req.Message)
	if content == "" {
		return nil, apperr.New(apperr.BadRequest, "Message must not be empty")
	}
	role := model.RoleUser
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil || parsed == model.RoleSystem {
			return nil, apperr.New(apperr.BadRequest, "Invalid role")
		}
		role = parsed
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	// 同一对话的多轮请求串行执行，不同对话并行
	unlock := s.conversations.LockConversation(conversationID)
	defer unlock()

	// 2. 取得持久化的对话记录
	conv, err := s.conversations.GetOrCreate(ctx, conversationID, user.ID)
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.NotFound || k == apperr.BadRequest {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.InternalError, "resolve conversation", err)
	}
	if !conv.IsActive {
		return nil, apperr.New(apperr.ConversationClosed, "Conversation is no longer active")
	}

	history, err := s.loadHistory(ctx, conv)
	if err != nil {
		return nil, err
	}

	// 3. 记录用户消息
	history = s.appendTurn(ctx, conv, user.ID, history, role, content)

	// 4. 调用补全服务
	completionCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		completionCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result := s.llmClient.Complete(completionCtx, toLLMMessages(history), onDelta)
	reply := result.Text
	if result.Failed() {
		log.Errorf("[ChatService] 补全服务调用失败, conversation: %s, detail: %s", conversationID, result.Detail)
		reply = providerErrorPrefix + result.Detail
	}

	// 5. 记录助手回复
	history = s.appendTurn(ctx, conv, user.ID, history, model.RoleAssistant, reply)

	// 6. 首轮对话结束后用第一条用户消息作为标题
	if title, ok := firstExchangeTitle(history); ok {
		if err := s.conversations.SetTitle(ctx, conv, title); err != nil {
			log.Errorf("[ChatService] 更新对话标题失败, conversation: %s, error: %v", conversationID, err)
		}
	}

	return &ChatReply{Reply: reply, ConversationID: conversationID}, nil
}

// loadHistory 从缓存读取消息列表。未命中或 system 消息与当前规范提示不一致时从数据库重建。
func (s *chatService) loadHistory(ctx context.Context, conv *model.Conversation) ([]model.ChatTurn, error) {
	prompt := s.conversations.SystemPrompt()
	turns, ok, err := s.cache.Get(ctx, conv.ConversationID)
	if err != nil {
		log.Warnf("[ChatService] 读取会话缓存失败, conversation: %s, error: %v", conv.ConversationID, err)
	}
	if ok && len(turns) > 0 && turns[0].Role == model.RoleSystem && turns[0].Content == prompt {
		return turns, nil
	}

	msgs, err := s.conversations.CorrectedMessages(ctx, conv)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "load conversation history", err)
	}
	turns = make([]model.ChatTurn, 0, len(msgs)+2)
	for _, m := range msgs {
		turns = append(turns, m.Turn())
	}
	if err := s.cache.Put(ctx, conv.ConversationID, turns); err != nil {
		log.Warnf("[ChatService] 写入会话缓存失败, conversation: %s, error: %v", conv.ConversationID, err)
	}
	return turns, nil
}

// appendTurn 先写缓存再写数据库。数据库写入失败时只记录日志，该消息仅保留在缓存中。
func (s *chatService) appendTurn(ctx context.Context, conv *model.Conversation, userID uint, history []model.ChatTurn, role model.Role, content string) []model.ChatTurn {
	turn := model.ChatTurn{Role: role, Content: content}
	history = append(history, turn)
	if err := s.cache.Append(ctx, conv.ConversationID, turn); err != nil {
		log.Warnf("[ChatService] 追加会话缓存失败, conversation: %s, error: %v", conv.ConversationID, err)
	}

	msg, err := s.conversations.Append(ctx, conv, role, content)
	if err != nil {
		log.Errorf("[ChatService] 持久化消息失败，降级为仅缓存, conversation: %s, role: %s, error: %v", conv.ConversationID, role, err)
		return history
	}
	s.publish(ctx, conv, userID, msg)
	return history
}

func (s *chatService) publish(ctx context.Context, conv *model.Conversation, userID uint, msg *model.Message) {
	if s.events == nil {
		return
	}
	event := tasks.MessageEvent{
		EventID:        uuid.NewString(),
		ConversationID: conv.ConversationID,
		UserID:         userID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Timestamp:      msg.Timestamp,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warnf("[ChatService] 发布消息事件失败, conversation: %s, error: %v", conv.ConversationID, err)
	}
}

// firstExchangeTitle 在恰好完成一问一答时返回由第一条用户消息生成的标题。
func firstExchangeTitle(history []model.ChatTurn) (string, bool) {
	var users, assistants int
	var first string
	for _, t := range history {
		switch t.Role {
		case model.RoleUser:
			if users == 0 {
				first = t.Content
			}
			users++
		case model.RoleAssistant:
			assistants++
		}
	}
	if users != 1 || assistants != 1 {
		return "", false
	}
	return truncateTitle(first), true
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= titleMaxRunes {
		return s
	}
	return string([]rune(s)[:titleMaxRunes]) + "..."
}

func toLLMMessages(turns []model.ChatTurn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}
