package repository

import (
	"Clubhouse/internal/model"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReadReceiptRepo interface {
	CreateReceipts(ctx context.Context, receipts []*model.ReadReceipt) (int64, error)
	GetReceipts(ctx context.Context, msgID uint64) ([]*model.ReadReceipt, error)
	HasReceipt(ctx context.Context, msgID, userID uint64) (bool, error)
}

type readReceiptRepoImpl struct {
	db *gorm.DB
}

func NewReadReceiptRepo(db *gorm.DB) ReadReceiptRepo {
	return &readReceiptRepoImpl{db: db}
}

// CreateReceipts 批量写回执，已存在的跳过，返回新写入条数
func (s *readReceiptRepoImpl) CreateReceipts(ctx context.Context, receipts []*model.ReadReceipt) (int64, error) {
	if len(receipts) == 0 {
		return 0, nil
	}
	res := conn(ctx, s.db).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(receipts, 200)
	return res.RowsAffected, res.Error
}

func (s *readReceiptRepoImpl) GetReceipts(ctx context.Context, msgID uint64) ([]*model.ReadReceipt, error) {
	var list []*model.ReadReceipt
	err := conn(ctx, s.db).Where("message_id = ?", msgID).Order("id ASC").Find(&list).Error
	return list, err
}

func (s *readReceiptRepoImpl) HasReceipt(ctx context.Context, msgID, userID uint64) (bool, error) {
	var n int64
	err := conn(ctx, s.db).Model(&model.ReadReceipt{}).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		Count(&n).Error
	return n > 0, err
}
