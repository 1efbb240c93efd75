package repository

import (
	"Clubhouse/internal/model"
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationForUpdate(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error)

	UpdateLastMessage(ctx context.Context, convID, msgID uint64, at time.Time) error
	UpdateName(ctx context.Context, convID uint64, name string) error

	ListUserConversations(ctx context.Context, userID uint64, keyword string, limit, offset int) ([]*ConversationItem, error)
	CountUserConversations(ctx context.Context, userID uint64, keyword string) (int64, error)
	ListActiveConversationIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error)
}

// ConversationItem 会话列表行：会话 + 当前用户的成员状态
type ConversationItem struct {
	ConversationID uint64
	Type           int8
	Name           string
	PeerKey        *string
	CreatorID      uint64
	LastMessageID  uint64
	LastMessageAt  time.Time
	CreatedAt      time.Time
	UnreadCount    int64
	LastReadAt     *time.Time
	JoinedAt       time.Time
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 创建会话，单聊 PeerKey 冲突时返回 gorm.ErrDuplicatedKey
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	err := conn(ctx, s.db).Create(conv).Error
	if IsDuplicateKey(err) {
		return gorm.ErrDuplicatedKey
	}
	return err
}

// GetConversation 根据会话 ID 获取会话，不存在返回 nil
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := conn(ctx, s.db).First(&conv, convID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationForUpdate 行锁读取，同一会话的写操作在此串行
func (s *conversationRepoImpl) GetConversationForUpdate(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := conn(ctx, s.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&conv, convID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationByPeerKey 根据单聊标识获取会话
func (s *conversationRepoImpl) GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := conn(ctx, s.db).Where("peer_key = ?", peerKey).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateLastMessage 更新最新消息水位
func (s *conversationRepoImpl) UpdateLastMessage(ctx context.Context, convID, msgID uint64, at time.Time) error {
	return conn(ctx, s.db).Model(&model.Conversation{}).Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_message_id": msgID,
			"last_message_at": at,
		}).Error
}

func (s *conversationRepoImpl) UpdateName(ctx context.Context, convID uint64, name string) error {
	return conn(ctx, s.db).Model(&model.Conversation{}).Where("id = ?", convID).
		Update("name", name).Error
}

// ListUserConversations 用户在会的会话，按最近活跃倒序
func (s *conversationRepoImpl) ListUserConversations(ctx context.Context, userID uint64, keyword string, limit, offset int) ([]*ConversationItem, error) {
	var items []*ConversationItem
	err := s.userConversationQuery(ctx, userID, keyword).
		Select("c.id AS conversation_id, c.type AS type, c.name AS name, c.peer_key AS peer_key, " +
			"c.creator_id AS creator_id, c.last_message_id AS last_message_id, " +
			"c.last_message_at AS last_message_at, c.created_at AS created_at, " +
			"p.unread_count AS unread_count, p.last_read_at AS last_read_at, p.joined_at AS joined_at").
		Order("c.last_message_at DESC, c.last_message_id DESC, c.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *conversationRepoImpl) CountUserConversations(ctx context.Context, userID uint64, keyword string) (int64, error) {
	var total int64
	err := s.userConversationQuery(ctx, userID, keyword).Count(&total).Error
	return total, err
}

// ListActiveConversationIDs 按 ID 游标遍历仍有在会成员的会话
func (s *conversationRepoImpl) ListActiveConversationIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	var ids []uint64
	err := conn(ctx, s.db).Model(&model.Participant{}).
		Distinct("conversation_id").
		Where("is_active = ? AND conversation_id > ?", true, afterID).
		Order("conversation_id ASC").
		Limit(limit).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

func (s *conversationRepoImpl) userConversationQuery(ctx context.Context, userID uint64, keyword string) *gorm.DB {
	q := conn(ctx, s.db).Table("conversations c").
		Joins("JOIN conversation_participants p ON p.conversation_id = c.id").
		Where("p.user_id = ? AND p.is_active = ?", userID, true)
	if keyword = strings.TrimSpace(keyword); keyword != "" {
		q = q.Where("LOWER(c.name) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(keyword))+"%")
	}
	return q
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
