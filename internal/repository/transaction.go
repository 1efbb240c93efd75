package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type txKey struct{}

// Transaction 跨仓储事务，事务句柄随 ctx 传递
type Transaction interface {
	// Exec 在事务中执行 fn，嵌套调用时使用 SavePoint
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}

type gormTransaction struct {
	db *gorm.DB
}

func NewTransaction(db *gorm.DB) Transaction {
	return &gormTransaction{db: db}
}

func (s *gormTransaction) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	return conn(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn 优先取 ctx 中的事务句柄
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// IsDuplicateKey 判断唯一键冲突 (MySQL 1062 / SQLite UNIQUE)
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
