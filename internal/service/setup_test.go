package service

import (
	"Clubhouse/internal/api/dto"
	"Clubhouse/internal/model"
	"Clubhouse/internal/pkg/event"
	"Clubhouse/internal/repository"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeResolver struct {
	mu    sync.Mutex
	users map[uint64]string
	err   error
}

func newFakeResolver(ids ...uint64) *fakeResolver {
	r := &fakeResolver{users: map[uint64]string{}}
	for _, id := range ids {
		r.users[id] = fmt.Sprintf("user-%d", id)
	}
	return r
}

func (r *fakeResolver) Resolve(_ context.Context, ids []uint64) (map[uint64]*UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	res := map[uint64]*UserProfile{}
	for _, id := range ids {
		if name, ok := r.users[id]; ok {
			res[id] = &UserProfile{ID: id, Nickname: name}
		}
	}
	return res, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	envs []*event.Envelope
}

func (d *recordingDispatcher) Dispatch(env *event.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.envs = append(d.envs, env)
	return nil
}

func (d *recordingDispatcher) ofType(t event.Type) []*event.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Envelope
	for _, env := range d.envs {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type imFixture struct {
	db     *gorm.DB
	svc    IMService
	users  *fakeResolver
	events *recordingDispatcher
	parts  repository.ParticipantRepo
}

func newIMFixture(t *testing.T, opts IMOptions, userIDs ...uint64) *imFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
		&model.ReadReceipt{},
	))

	return newFixtureOn(db, opts, userIDs...)
}

func newFixtureOn(db *gorm.DB, opts IMOptions, userIDs ...uint64) *imFixture {
	f := &imFixture{
		db:     db,
		users:  newFakeResolver(userIDs...),
		events: &recordingDispatcher{},
		parts:  repository.NewParticipantRepo(db),
	}
	f.svc = NewIMService(
		repository.NewTransaction(db),
		repository.NewConversationRepo(db),
		f.parts,
		repository.NewMessageRepo(db),
		repository.NewReadReceiptRepo(db),
		f.users,
		f.events,
		opts,
	)
	return f
}

// participant 读取当前在会成员行，不在会时为 nil
func (f *imFixture) participant(t *testing.T, convID, userID uint64) *model.Participant {
	t.Helper()
	p, err := f.parts.GetActiveParticipant(context.Background(), convID, userID)
	require.NoError(t, err)
	return p
}

func (f *imFixture) unread(t *testing.T, convID, userID uint64) int64 {
	t.Helper()
	p := f.participant(t, convID, userID)
	require.NotNil(t, p, "user %d is not an active participant", userID)
	return p.UnreadCount
}

func (f *imFixture) count(t *testing.T, m any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (f *imFixture) sendText(t *testing.T, convID, senderID uint64, text string) uint64 {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), convID, senderID, &dto.SendMessageReq{MsgType: model.MsgTypeText, Content: text})
	require.NoError(t, err)
	return msg.ID
}
