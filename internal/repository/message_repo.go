package repository

import (
	"Clubhouse/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type MessageRepo interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, msgID uint64) (*model.Message, error)
	GetHistory(ctx context.Context, convID, beforeID uint64, limit int) ([]*model.Message, error)
	ListUnreadMessages(ctx context.Context, convID, userID, afterID, uptoID uint64) ([]*model.Message, error)
	CountUnread(ctx context.Context, convID, userID, afterID uint64) (int64, error)
	SoftDelete(ctx context.Context, msgID uint64) error
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

func (s *messageRepoImpl) CreateMessage(ctx context.Context, msg *model.Message) error {
	return conn(ctx, s.db).Create(msg).Error
}

// GetMessage 获取单条消息，不存在返回 nil
func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID uint64) (*model.Message, error) {
	var msg model.Message
	err := conn(ctx, s.db).First(&msg, msgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetHistory 按 ID 倒序分页，beforeID 为 0 时从最新开始
func (s *messageRepoImpl) GetHistory(ctx context.Context, convID, beforeID uint64, limit int) ([]*model.Message, error) {
	var list []*model.Message
	q := conn(ctx, s.db).Where("conversation_id = ?", convID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	err := q.Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// ListUnreadMessages (afterID, uptoID] 区间内他人发送、未删除且无回执的消息
func (s *messageRepoImpl) ListUnreadMessages(ctx context.Context, convID, userID, afterID, uptoID uint64) ([]*model.Message, error) {
	var list []*model.Message
	err := s.unreadQuery(ctx, convID, userID, afterID).
		Where("id <= ?", uptoID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// CountUnread 重算游标之后的未读数
func (s *messageRepoImpl) CountUnread(ctx context.Context, convID, userID, afterID uint64) (int64, error) {
	var n int64
	err := s.unreadQuery(ctx, convID, userID, afterID).Count(&n).Error
	return n, err
}

func (s *messageRepoImpl) unreadQuery(ctx context.Context, convID, userID, afterID uint64) *gorm.DB {
	return conn(ctx, s.db).Model(&model.Message{}).
		Where("conversation_id = ? AND id > ? AND sender_id <> ? AND is_deleted = ?", convID, afterID, userID, false).
		Where("NOT EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = messages.id AND r.user_id = ?)", userID)
}

func (s *messageRepoImpl) SoftDelete(ctx context.Context, msgID uint64) error {
	return conn(ctx, s.db).Model(&model.Message{}).Where("id = ?", msgID).
		Update("is_deleted", true).Error
}
