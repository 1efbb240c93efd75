package repository

import (
	"Clubhouse/internal/model"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type repoFixture struct {
	conv     ConversationRepo
	part     ParticipantRepo
	msg      MessageRepo
	receipt  ReadReceiptRepo
	convID   uint64
	joinedAt time.Time
}

func newRepoFixture(t *testing.T, userIDs ...uint64) *repoFixture {
	t.Helper()
	db := newTestDB(t)
	f := &repoFixture{
		conv:     NewConversationRepo(db),
		part:     NewParticipantRepo(db),
		msg:      NewMessageRepo(db),
		receipt:  NewReadReceiptRepo(db),
		joinedAt: time.Now(),
	}
	f.convID = createGroup(t, f.conv, "fixture", time.Now()).ID
	for _, uid := range userIDs {
		require.NoError(t, f.part.CreateParticipant(context.Background(), &model.Participant{
			ConversationID: f.convID, UserID: uid, JoinedAt: f.joinedAt,
		}))
	}
	return f
}

func (f *repoFixture) send(t *testing.T, senderID uint64) *model.Message {
	t.Helper()
	m := &model.Message{ConversationID: f.convID, SenderID: senderID, MsgType: model.MsgTypeText, Content: "hello"}
	require.NoError(t, f.msg.CreateMessage(context.Background(), m))
	return m
}

func TestParticipantRepo_ActiveKeyUnique(t *testing.T) {
	f := newRepoFixture(t, 1)
	ctx := context.Background()

	err := f.part.CreateParticipant(ctx, &model.Participant{ConversationID: f.convID, UserID: 1, JoinedAt: time.Now()})
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	p, err := f.part.GetActiveParticipant(ctx, f.convID, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.ActiveKey)
	assert.Equal(t, model.ActiveKeyOf(f.convID, 1), *p.ActiveKey)

	// 离开后可以重新入会，旧行保留
	require.NoError(t, f.part.Deactivate(ctx, p.ID, time.Now()))
	gone, err := f.part.GetActiveParticipant(ctx, f.convID, 1)
	require.NoError(t, err)
	assert.Nil(t, gone)

	require.NoError(t, f.part.CreateParticipant(ctx, &model.Participant{ConversationID: f.convID, UserID: 1, JoinedAt: time.Now()}))

	history, err := f.part.ListParticipantHistory(ctx, f.convID, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive)
	assert.NotNil(t, history[0].LeftAt)
	assert.Nil(t, history[0].ActiveKey)
	assert.True(t, history[1].IsActive)
	assert.Nil(t, history[1].LeftAt)
}

func TestParticipantRepo_UnreadCounters(t *testing.T) {
	f := newRepoFixture(t, 1, 2, 3)
	ctx := context.Background()

	require.NoError(t, f.part.IncrUnreadExcept(ctx, f.convID, 1))
	require.NoError(t, f.part.IncrUnreadExcept(ctx, f.convID, 1))
	require.NoError(t, f.part.IncrUnreadExcept(ctx, f.convID, 2))

	list, err := f.part.ListActiveParticipants(ctx, f.convID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	counts := map[uint64]int64{}
	for _, p := range list {
		counts[p.UserID] = p.UnreadCount
	}
	assert.Equal(t, map[uint64]int64{1: 1, 2: 2, 3: 3}, counts)

	total, err := f.part.GetTotalUnreadCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	p3, err := f.part.GetActiveParticipantForUpdate(ctx, f.convID, 3)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, f.part.UpdateReadState(ctx, p3.ID, 9, &now, 0))
	p3, err = f.part.GetActiveParticipant(ctx, f.convID, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), p3.ReadMsgID)
	assert.Equal(t, int64(0), p3.UnreadCount)
	assert.NotNil(t, p3.LastReadAt)

	total, err = f.part.GetTotalUnreadCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	ids, err := f.part.ListActiveUserIDs(ctx, f.convID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestMessageRepo_UnreadQuery(t *testing.T) {
	f := newRepoFixture(t, 1, 2)
	ctx := context.Background()

	f.send(t, 2)
	m1 := f.send(t, 1)
	m2 := f.send(t, 1)
	deleted := f.send(t, 1)
	m3 := f.send(t, 1)
	require.NoError(t, f.msg.SoftDelete(ctx, deleted.ID))

	n, err := f.msg.CountUnread(ctx, f.convID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// 游标之前的消息不计入
	n, err = f.msg.CountUnread(ctx, f.convID, 2, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	inserted, err := f.receipt.CreateReceipts(ctx, []*model.ReadReceipt{
		{MessageID: m2.ID, UserID: 2, ConversationID: f.convID, ReadAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	list, err := f.msg.ListUnreadMessages(ctx, f.convID, 2, 0, m3.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, m1.ID, list[0].ID)
	assert.Equal(t, m3.ID, list[1].ID)

	list, err = f.msg.ListUnreadMessages(ctx, f.convID, 2, 0, m2.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, m1.ID, list[0].ID)

	// 自己发送的消息对自己不算未读
	n, err = f.msg.CountUnread(ctx, f.convID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMessageRepo_GetHistory(t *testing.T) {
	f := newRepoFixture(t, 1)
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, 1).ID)
	}

	page, err := f.msg.GetHistory(ctx, f.convID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = f.msg.GetHistory(ctx, f.convID, page[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[0], page[2].ID)

	missing, err := f.msg.GetMessage(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReadReceiptRepo_Idempotent(t *testing.T) {
	f := newRepoFixture(t, 1, 2)
	ctx := context.Background()
	m := f.send(t, 1)

	build := func() []*model.ReadReceipt {
		return []*model.ReadReceipt{{MessageID: m.ID, UserID: 2, ConversationID: f.convID, ReadAt: time.Now()}}
	}
	n, err := f.receipt.CreateReceipts(ctx, build())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.receipt.CreateReceipts(ctx, build())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = f.receipt.CreateReceipts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := f.receipt.GetReceipts(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	ok, err := f.receipt.HasReceipt(ctx, m.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.receipt.HasReceipt(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepo_GetAvailableUserIds(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, &model.User{ID: 1, Nickname: "alice"}))
	require.NoError(t, repo.CreateUser(ctx, &model.User{ID: 2, Nickname: "bob", IsBan: true}))
	require.NoError(t, repo.CreateUser(ctx, &model.User{ID: 3, Nickname: "carol", IsDelete: true}))

	ids, err := repo.GetAvailableUserIds(ctx, []uint64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)

	users, err := repo.GetUserByIds(ctx, []uint64{1, 2, 4})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	u, err := repo.GetUserById(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, u)
}
