package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chatbot-go/internal/apperr"
	"chatbot-go/internal/model"
	"chatbot-go/internal/repository"
	"chatbot-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxTitleRunes 与 conversations.title 列宽一致。
const maxTitleRunes = 255

// MigrationReport 统计一次 system 消息修正的结果。
type MigrationReport struct {
	Updated  int `json:"updated"`
	Inserted int `json:"inserted"`
	Removed  int `json:"removed"`
}

func (r *MigrationReport) add(o MigrationReport) {
	r.Updated += o.Updated
	r.Inserted += o.Inserted
	r.Removed += o.Removed
}

func (r MigrationReport) changed() bool {
	return r.Updated+r.Inserted+r.Removed > 0
}

// ConversationService 定义了对话和消息的业务逻辑。
// 对话必须属于调用方，否则一律按 NotFound 处理。
type ConversationService interface {
	GetOrCreate(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error)
	Append(ctx context.Context, conv *model.Conversation, role model.Role, content string) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID string, userID uint) ([]model.Message, error)
	ListForUser(ctx context.Context, userID uint) ([]model.Conversation, error)
	// Rename 修改标题并返回更新后的对话，标题会去掉首尾空白。
	Rename(ctx context.Context, conversationID string, userID uint, title string) (*model.Conversation, error)
	SetTitle(ctx context.Context, conv *model.Conversation, title string) error
	Delete(ctx context.Context, conversationID string, userID uint) error
	// CorrectedMessages 修正单个对话的 system 消息并返回修正后的完整消息列表。
	CorrectedMessages(ctx context.Context, conv *model.Conversation) ([]model.Message, error)
	// MigrateSystemPrompt 对所有对话执行一次修正，可重复执行。
	MigrateSystemPrompt(ctx context.Context) (MigrationReport, error)
	SystemPrompt() string
	// LockConversation 串行化同一对话上的读写，返回解锁函数。
	LockConversation(conversationID string) (unlock func())
}

type conversationService struct {
	repo         repository.ConversationRepository
	cache        repository.SessionCache
	index        HistoryIndex
	systemPrompt string
	locks        *keyedMutex
}

// NewConversationService 创建一个新的 ConversationService。index 可以为 nil。
func NewConversationService(repo repository.ConversationRepository, cache repository.SessionCache, index HistoryIndex, systemPrompt string) ConversationService {
	return &conversationService{
		repo:         repo,
		cache:        cache,
		index:        index,
		systemPrompt: systemPrompt,
		locks:        newKeyedMutex(),
	}
}

var errConversationNotFound = apperr.New(apperr.NotFound, "Conversation not found")

func (s *conversationService) SystemPrompt() string { return s.systemPrompt }

func (s *conversationService) LockConversation(conversationID string) func() {
	return s.locks.Lock(conversationID)
}

// GetOrCreate 返回已有对话，或在同一事务中新建对话及其 system 消息。
func (s *conversationService) GetOrCreate(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	conv, err := s.findOwned(ctx, conversationID, userID)
	if err == nil {
		return conv, nil
	}
	if apperr.KindOf(err) != apperr.NotFound || !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = &model.Conversation{ConversationID: conversationID, UserID: userID, Title: model.DefaultConversationTitle}
	if createErr := s.repo.CreateWithSystemMessage(ctx, conv, s.systemPrompt); createErr != nil {
		// 并发创建同一 ID 时，另一方已经写入
		if existing, findErr := s.findOwned(ctx, conversationID, userID); findErr == nil {
			return existing, nil
		} else if apperr.KindOf(findErr) == apperr.NotFound && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return nil, findErr
		}
		return nil, apperr.Wrap(apperr.InternalError, "create conversation", createErr)
	}
	log.Infof("[ConversationService] 新建对话, conversation: %s, user: %d", conversationID, userID)
	return conv, nil
}

// findOwned 查找属于 userID 的对话。不存在时返回包装了 gorm.ErrRecordNotFound 的 NotFound，
// 属于其他用户时返回不带原因的 NotFound。
func (s *conversationService) findOwned(ctx context.Context, conversationID string, userID uint) (*model.Conversation, error) {
	conv, err := s.repo.FindByConversationID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.NotFound, "Conversation not found", err)
		}
		return nil, apperr.Wrap(apperr.InternalError, "find conversation", err)
	}
	if conv.UserID != userID {
		return nil, errConversationNotFound
	}
	return conv, nil
}

func (s *conversationService) Append(ctx context.Context, conv *model.Conversation, role model.Role, content string) (*model.Message, error) {
	if !role.Valid() {
		return nil, apperr.New(apperr.BadRequest, "Invalid role")
	}
	msg, err := s.repo.AppendMessage(ctx, conv, role, content)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "append message", err)
	}
	return msg, nil
}

func (s *conversationService) ListMessages(ctx context.Context, conversationID string, userID uint) ([]model.Message, error) {
	conv, err := s.findOwned(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "list messages", err)
	}
	return msgs, nil
}

func (s *conversationService) ListForUser(ctx context.Context, userID uint) ([]model.Conversation, error) {
	convs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "list conversations", err)
	}
	return convs, nil
}

func (s *conversationService) Rename(ctx context.Context, conversationID string, userID uint, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.New(apperr.BadRequest, "Title must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return nil, apperr.New(apperr.BadRequest, "Title is too long")
	}
	conv, err := s.findOwned(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.SetTitle(ctx, conv, title); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *conversationService) SetTitle(ctx context.Context, conv *model.Conversation, title string) error {
	if err := s.repo.UpdateTitle(ctx, conv.ID, title); err != nil {
		return apperr.Wrap(apperr.InternalError, "update title", err)
	}
	conv.Title = title
	return nil
}

// Delete 删除对话及其消息，同时清理会话缓存和搜索索引。
// 持有对话锁，进行中的一轮聊天结束后才会删除，不会留下过期的缓存。
func (s *conversationService) Delete(ctx context.Context, conversationID string, userID uint) error {
	unlock := s.LockConversation(conversationID)
	defer unlock()

	conv, err := s.findOwned(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, conv.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errConversationNotFound
		}
		return apperr.Wrap(apperr.InternalError, "delete conversation", err)
	}
	if err := s.cache.Invalidate(ctx, conversationID); err != nil {
		log.Errorf("[ConversationService] 清理会话缓存失败, conversation: %s, error: %v", conversationID, err)
	}
	if s.index != nil {
		if err := s.index.DeleteConversation(ctx, conversationID); err != nil {
			log.Errorf("[ConversationService] 清理搜索索引失败, conversation: %s, error: %v", conversationID, err)
		}
	}
	log.Infof("[ConversationService] 已删除对话, conversation: %s, user: %d", conversationID, userID)
	return nil
}

func (s *conversationService) CorrectedMessages(ctx context.Context, conv *model.Conversation) ([]model.Message, error) {
	msgs, _, err := s.enforceSystemPrompt(ctx, conv)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "correct system prompt", err)
	}
	return msgs, nil
}

func (s *conversationService) MigrateSystemPrompt(ctx context.Context) (MigrationReport, error) {
	var total MigrationReport
	convs, err := s.repo.FindAll(ctx)
	if err != nil {
		return total, apperr.Wrap(apperr.InternalError, "list conversations", err)
	}
	for i := range convs {
		_, report, err := s.enforceSystemPrompt(ctx, &convs[i])
		if err != nil {
			return total, apperr.Wrap(apperr.InternalError, "correct system prompt", err)
		}
		if report.changed() {
			// 缓存中可能仍是旧的 system 消息
			if err := s.cache.Invalidate(ctx, convs[i].ConversationID); err != nil {
				log.Warnf("[ConversationService] 清理会话缓存失败: %v", err)
			}
		}
		total.add(report)
	}
	log.Infow("system prompt migration finished",
		"conversations", len(convs),
		"updated", total.Updated,
		"inserted", total.Inserted,
		"removed", total.Removed,
	)
	return total, nil
}

// enforceSystemPrompt 保证对话按时间排序的第一条消息是唯一的 system 消息，且内容为当前规范提示：
// 内容过期的就地更新，缺失的插入到最早消息之前，多余的删除。
func (s *conversationService) enforceSystemPrompt(ctx context.Context, conv *model.Conversation) ([]model.Message, MigrationReport, error) {
	var report MigrationReport
	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, report, err
	}

	var systemIdx []int
	for i, m := range msgs {
		if m.Role == model.RoleSystem {
			systemIdx = append(systemIdx, i)
		}
	}

	switch {
	case len(systemIdx) > 0 && systemIdx[0] == 0:
		// 保留第一条，其余删除
		if msgs[0].Content != s.systemPrompt {
			if err := s.repo.UpdateMessageContent(ctx, msgs[0].ID, s.systemPrompt); err != nil {
				return nil, report, err
			}
			report.Updated++
		}
		if extra := systemIdx[1:]; len(extra) > 0 {
			if err := s.repo.DeleteMessages(ctx, messageIDs(msgs, extra)); err != nil {
				return nil, report, err
			}
			report.Removed += len(extra)
		}
	default:
		// 没有 system 消息，或者它不在最前面：全部删除后在最早消息之前插入一条
		if len(systemIdx) > 0 {
			if err := s.repo.DeleteMessages(ctx, messageIDs(msgs, systemIdx)); err != nil {
				return nil, report, err
			}
			report.Removed += len(systemIdx)
		}
		ts := time.Now().UTC()
		if len(msgs) > 0 {
			ts = msgs[0].Timestamp.Add(-time.Millisecond)
		}
		sys := &model.Message{
			ConversationID: conv.ID,
			Role:           model.RoleSystem,
			Content:        s.systemPrompt,
			Timestamp:      ts,
		}
		if err := s.repo.InsertMessage(ctx, sys); err != nil {
			return nil, report, err
		}
		report.Inserted++
	}

	if !report.changed() {
		return msgs, report, nil
	}
	msgs, err = s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, report, err
	}
	return msgs, report, nil
}

func messageIDs(msgs []model.Message, idx []int) []uint {
	ids := make([]uint, 0, len(idx))
	for _, i := range idx {
		ids = append(ids, msgs[i].ID)
	}
	return ids
}
