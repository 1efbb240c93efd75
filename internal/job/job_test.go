package job

import (
	"Clubhouse/internal/pkg/event"
	"Clubhouse/internal/pkg/mongo"
	"Clubhouse/internal/repository"
	"Clubhouse/internal/service"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// stubConvRepo 只实现分页遍历，其余方法不会被调用
type stubConvRepo struct {
	repository.ConversationRepo
	ids []uint64
}

func (s *stubConvRepo) ListActiveConversationIDs(_ context.Context, afterID uint64, limit int) ([]uint64, error) {
	out := make([]uint64, 0, limit)
	for _, id := range s.ids {
		if id > afterID && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

type mockIMService struct {
	service.IMService
	mock.Mock
}

func (m *mockIMService) RecomputeUnread(ctx context.Context, convID uint64) (int, error) {
	args := m.Called(ctx, convID)
	return args.Int(0), args.Error(1)
}

func TestUnreadReconcileJob_Reconcile(t *testing.T) {
	ids := make([]uint64, 0, reconcileBatch+3)
	for i := 1; i <= reconcileBatch+3; i++ {
		ids = append(ids, uint64(i))
	}
	svc := &mockIMService{}
	svc.On("RecomputeUnread", mock.Anything, uint64(5)).Return(2, nil).Once()
	svc.On("RecomputeUnread", mock.Anything, uint64(7)).Return(0, errors.New("deadlock")).Once()
	svc.On("RecomputeUnread", mock.Anything, mock.AnythingOfType("uint64")).Return(0, nil)

	job := NewUnreadReconcileJob(&stubConvRepo{ids: ids}, svc)
	scanned, drifted, err := job.Reconcile(context.Background())
	require.NoError(t, err)

	// 失败的会话跳过，不中断整轮对账
	assert.Equal(t, len(ids)-1, scanned)
	assert.Equal(t, 2, drifted)
	svc.AssertNumberOfCalls(t, "RecomputeUnread", len(ids))
}

func TestUnreadReconcileJob_Cancelled(t *testing.T) {
	svc := &mockIMService{}
	svc.On("RecomputeUnread", mock.Anything, mock.Anything).Return(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := NewUnreadReconcileJob(&stubConvRepo{ids: []uint64{1, 2}}, svc)
	_, _, err := job.Reconcile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type mockDeadLetterRepo struct {
	mock.Mock
}

func (m *mockDeadLetterRepo) SaveDeadLetter(ctx context.Context, env *event.Envelope, reason string) error {
	return m.Called(ctx, env, reason).Error(0)
}

func (m *mockDeadLetterRepo) ListPending(ctx context.Context, maxAttempts int, limit int64) ([]*mongo.DeadLetter, error) {
	args := m.Called(ctx, maxAttempts, limit)
	list, _ := args.Get(0).([]*mongo.DeadLetter)
	return list, args.Error(1)
}

func (m *mockDeadLetterRepo) MarkResolved(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDeadLetterRepo) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, env *event.Envelope) error {
	return m.Called(ctx, env).Error(0)
}

func TestEventRedeliverJob_Redeliver(t *testing.T) {
	ok := &mongo.DeadLetter{ID: primitive.NewObjectID(), EventID: "evt-ok", Type: string(event.TypeMessage), ConversationID: 3, Recipients: []uint64{2}, Payload: `{"messageId":9}`}
	bad := &mongo.DeadLetter{ID: primitive.NewObjectID(), EventID: "evt-bad", Type: string(event.TypeRead), ConversationID: 4}

	repo := &mockDeadLetterRepo{}
	repo.On("ListPending", mock.Anything, redeliverMaxAttempts, int64(redeliverBatch)).Return([]*mongo.DeadLetter{ok, bad}, nil)
	repo.On("MarkResolved", mock.Anything, ok.ID).Return(nil).Once()
	repo.On("MarkFailed", mock.Anything, bad.ID, "broker unavailable").Return(nil).Once()

	deliverer := &mockDeliverer{}
	deliverer.On("Deliver", mock.Anything, mock.MatchedBy(func(env *event.Envelope) bool {
		return env.ID == "evt-ok"
	})).Return(nil)
	deliverer.On("Deliver", mock.Anything, mock.MatchedBy(func(env *event.Envelope) bool {
		return env.ID == "evt-bad"
	})).Return(errors.New("broker unavailable"))

	job := NewEventRedeliverJob(repo, deliverer)
	resolved, failed, err := job.Redeliver(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, failed)

	repo.AssertExpectations(t)
	deliverer.AssertExpectations(t)
}

func TestEventRedeliverJob_ListError(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	repo.On("ListPending", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("mongo down"))

	job := NewEventRedeliverJob(repo, &mockDeliverer{})
	_, _, err := job.Redeliver(context.Background())
	assert.EqualError(t, err, "mongo down")
}

func TestDeadLetterToEnvelope(t *testing.T) {
	dl := &mongo.DeadLetter{EventID: "e1", Type: string(event.TypeMessage), ConversationID: 8, Recipients: []uint64{1, 2}, Payload: `{"a":1}`}
	env := dl.ToEnvelope()
	assert.Equal(t, "e1", env.ID)
	assert.Equal(t, event.TypeMessage, env.Type)
	assert.Equal(t, uint64(8), env.ConversationID)
	assert.Equal(t, []uint64{1, 2}, env.Recipients)
	assert.JSONEq(t, `{"a":1}`, string(env.Payload))
}
