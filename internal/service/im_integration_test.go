//go:build integration

package service

import (
	"Clubhouse/internal/api/dto"
	"Clubhouse/internal/model"
	"Clubhouse/internal/pkg/database"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"golang.org/x/sync/errgroup"
	gormmysql "gorm.io/driver/mysql"
)

// newMySQLFixture 真实 MySQL 上验证行锁与唯一键冲突重试
func newMySQLFixture(t *testing.T, userIDs ...uint64) *imFixture {
	t.Helper()
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0.36",
		mysql.WithDatabase("clubhouse"),
		mysql.WithUsername("clubhouse"),
		mysql.WithPassword("clubhouse"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=True", "loc=Local")
	require.NoError(t, err)
	db, err := database.Open(gormmysql.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	return newFixtureOn(db, IMOptions{}, userIDs...)
}

func TestMySQL_DirectConversationRace(t *testing.T) {
	f := newMySQLFixture(t, 1, 2)
	ctx := context.Background()

	const callers = 8
	ids := make([]uint64, callers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			a, b := uint64(1), uint64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := f.svc.GetOrCreateDirectConversation(gctx, a, b)
			if err != nil {
				return err
			}
			ids[i] = conv.ConversationID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(1), f.count(t, &model.Conversation{}, ""))
	assert.Equal(t, int64(2), f.count(t, &model.Participant{}, "is_active = ?", true))
}

func TestMySQL_ConcurrentSendAndRead(t *testing.T) {
	f := newMySQLFixture(t, 1, 2, 3, 4)
	ctx := context.Background()

	group, err := f.svc.CreateGroupConversation(ctx, 1, "load", []uint64{2, 3, 4})
	require.NoError(t, err)
	convID := group.Conversation.ConversationID

	const perSender = 10
	senders := []uint64{1, 2, 3}
	g, gctx := errgroup.WithContext(ctx)
	for _, sender := range senders {
		sender := sender
		g.Go(func() error {
			for i := 0; i < perSender; i++ {
				_, err := f.svc.SendMessage(gctx, convID, sender, &dto.SendMessageReq{
					MsgType: model.MsgTypeText,
					Content: fmt.Sprintf("%d-%d", sender, i),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	// 用户 4 边收边读
	g.Go(func() error {
		for i := 0; i < perSender; i++ {
			if _, err := f.svc.MarkRead(gctx, convID, 4, nil); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	total := int64(perSender * len(senders))
	for _, sender := range senders {
		assert.Equal(t, total-perSender, f.unread(t, convID, sender), "sender %d", sender)
	}

	// 用户 4 的计数必须与消息和回执一致
	drifted, err := f.svc.RecomputeUnread(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 0, drifted)

	res, err := f.svc.MarkRead(ctx, convID, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.UnreadCount)
	assert.Equal(t, total, f.count(t, &model.ReadReceipt{}, "user_id = ?", 4))
}
