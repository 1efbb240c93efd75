package repository

import (
	"Clubhouse/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantRepo interface {
	CreateParticipant(ctx context.Context, p *model.Participant) error
	GetActiveParticipant(ctx context.Context, convID, userID uint64) (*model.Participant, error)
	GetActiveParticipantForUpdate(ctx context.Context, convID, userID uint64) (*model.Participant, error)
	ListActiveParticipants(ctx context.Context, convID uint64) ([]*model.Participant, error)
	ListActiveUserIDs(ctx context.Context, convID uint64) ([]uint64, error)
	ListParticipantHistory(ctx context.Context, convID, userID uint64) ([]*model.Participant, error)

	Deactivate(ctx context.Context, participantID uint64, leftAt time.Time) error
	IncrUnreadExcept(ctx context.Context, convID, senderID uint64) error
	UpdateReadState(ctx context.Context, participantID, readMsgID uint64, lastReadAt *time.Time, unread int64) error
	UpdateUnreadCount(ctx context.Context, participantID uint64, unread int64) error
	GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error)
}

type participantRepoImpl struct {
	db *gorm.DB
}

func NewParticipantRepo(db *gorm.DB) ParticipantRepo {
	return &participantRepoImpl{db: db}
}

// CreateParticipant 插入在会成员行，重复入会返回 gorm.ErrDuplicatedKey
func (s *participantRepoImpl) CreateParticipant(ctx context.Context, p *model.Participant) error {
	key := model.ActiveKeyOf(p.ConversationID, p.UserID)
	p.ActiveKey = &key
	p.IsActive = true
	err := conn(ctx, s.db).Create(p).Error
	if IsDuplicateKey(err) {
		return gorm.ErrDuplicatedKey
	}
	return err
}

// GetActiveParticipant 获取在会成员，不在会返回 nil
func (s *participantRepoImpl) GetActiveParticipant(ctx context.Context, convID, userID uint64) (*model.Participant, error) {
	return s.getActive(conn(ctx, s.db), convID, userID)
}

// GetActiveParticipantForUpdate 行锁读取在会成员
func (s *participantRepoImpl) GetActiveParticipantForUpdate(ctx context.Context, convID, userID uint64) (*model.Participant, error) {
	return s.getActive(conn(ctx, s.db).Clauses(clause.Locking{Strength: "UPDATE"}), convID, userID)
}

func (s *participantRepoImpl) getActive(db *gorm.DB, convID, userID uint64) (*model.Participant, error) {
	var p model.Participant
	err := db.Where("conversation_id = ? AND user_id = ? AND is_active = ?", convID, userID, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveParticipants 会话当前成员，按入会时间排序
func (s *participantRepoImpl) ListActiveParticipants(ctx context.Context, convID uint64) ([]*model.Participant, error) {
	var list []*model.Participant
	err := conn(ctx, s.db).
		Where("conversation_id = ? AND is_active = ?", convID, true).
		Order("joined_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (s *participantRepoImpl) ListActiveUserIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := conn(ctx, s.db).Model(&model.Participant{}).
		Where("conversation_id = ? AND is_active = ?", convID, true).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListParticipantHistory 某用户在会话中的全部入会周期
func (s *participantRepoImpl) ListParticipantHistory(ctx context.Context, convID, userID uint64) ([]*model.Participant, error) {
	var list []*model.Participant
	err := conn(ctx, s.db).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// Deactivate 离开会话，行保留用于审计
func (s *participantRepoImpl) Deactivate(ctx context.Context, participantID uint64, leftAt time.Time) error {
	return conn(ctx, s.db).Model(&model.Participant{}).Where("id = ?", participantID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"left_at":    leftAt,
			"active_key": nil,
		}).Error
}

// IncrUnreadExcept 除发送者外所有在会成员未读数 +1
func (s *participantRepoImpl) IncrUnreadExcept(ctx context.Context, convID, senderID uint64) error {
	return conn(ctx, s.db).Model(&model.Participant{}).
		Where("conversation_id = ? AND is_active = ? AND user_id <> ?", convID, true, senderID).
		Update("unread_count", gorm.Expr("unread_count + 1")).Error
}

// UpdateReadState 更新已读游标与重算后的未读数
func (s *participantRepoImpl) UpdateReadState(ctx context.Context, participantID, readMsgID uint64, lastReadAt *time.Time, unread int64) error {
	return conn(ctx, s.db).Model(&model.Participant{}).Where("id = ?", participantID).
		Updates(map[string]interface{}{
			"read_msg_id":  readMsgID,
			"last_read_at": lastReadAt,
			"unread_count": unread,
		}).Error
}

func (s *participantRepoImpl) UpdateUnreadCount(ctx context.Context, participantID uint64, unread int64) error {
	return conn(ctx, s.db).Model(&model.Participant{}).Where("id = ?", participantID).
		Update("unread_count", unread).Error
}

// GetTotalUnreadCount 计算全局未读数
func (s *participantRepoImpl) GetTotalUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := conn(ctx, s.db).Model(&model.Participant{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}
