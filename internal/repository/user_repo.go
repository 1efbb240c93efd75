package repository

import (
	"Clubhouse/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type UserRepo interface {
	GetUserById(ctx context.Context, id uint64) (*model.User, error)
	GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error)
	GetAvailableUserIds(ctx context.Context, ids []uint64) ([]uint64, error)
	CreateUser(ctx context.Context, user *model.User) error
}

type UserRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &UserRepoImpl{db: db}
}

func (s *UserRepoImpl) GetUserById(ctx context.Context, id uint64) (*model.User, error) {
	user := &model.User{}
	result := conn(ctx, s.db).First(user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return user, nil
}

func (s *UserRepoImpl) GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error) {
	users := make([]*model.User, 0)
	if len(ids) == 0 {
		return users, nil
	}
	result := conn(ctx, s.db).Where("id IN ?", ids).Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}
	return users, nil
}

// GetAvailableUserIds 过滤出未封禁、未注销的用户
func (s *UserRepoImpl) GetAvailableUserIds(ctx context.Context, ids []uint64) ([]uint64, error) {
	out := make([]uint64, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := conn(ctx, s.db).Model(&model.User{}).
		Where("id IN ? AND is_ban = ? AND is_delete = ?", ids, false, false).
		Pluck("id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserRepoImpl) CreateUser(ctx context.Context, user *model.User) error {
	return conn(ctx, s.db).Create(user).Error
}
