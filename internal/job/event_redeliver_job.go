package job

import (
	"Clubhouse/internal/pkg/consts"
	"Clubhouse/internal/pkg/event"
	"Clubhouse/internal/pkg/logger"
	"Clubhouse/internal/pkg/mongo"
	"Clubhouse/internal/pkg/redis"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	redeliverBatch       = 100
	redeliverMaxAttempts = 10
)

// Deliverer 同步投递
type Deliverer interface {
	Deliver(ctx context.Context, env *event.Envelope) error
}

// EventRedeliverJob 重放死信中的私信事件
type EventRedeliverJob struct {
	deadRepo  mongo.DeadLetterRepo
	deliverer Deliverer
}

func NewEventRedeliverJob(deadRepo mongo.DeadLetterRepo, deliverer Deliverer) *EventRedeliverJob {
	return &EventRedeliverJob{
		deadRepo:  deadRepo,
		deliverer: deliverer,
	}
}

func (s *EventRedeliverJob) Run() {
	traceID := "job-redeliver-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	if redis.Enabled() {
		ok, err := redis.TryLock(ctx, consts.IMRedeliverJobLock, traceID, 5*time.Minute, 1)
		if err != nil || !ok {
			return
		}
		defer redis.UnLock(ctx, consts.IMRedeliverJobLock, traceID)
	}

	resolved, failed, err := s.Redeliver(ctx)
	if err != nil {
		log.ErrorContext(ctx, "EventRedeliverJob failed", "err", err)
		return
	}
	if resolved+failed > 0 {
		log.InfoContext(ctx, "EventRedeliverJob finished", "resolved", resolved, "failed", failed)
	}
}

func (s *EventRedeliverJob) Redeliver(ctx context.Context) (int, int, error) {
	list, err := s.deadRepo.ListPending(ctx, redeliverMaxAttempts, redeliverBatch)
	if err != nil {
		return 0, 0, err
	}
	resolved, failed := 0, 0
	for _, dl := range list {
		if err = s.deliverer.Deliver(ctx, dl.ToEnvelope()); err != nil {
			failed++
			if mErr := s.deadRepo.MarkFailed(ctx, dl.ID, err.Error()); mErr != nil {
				log.ErrorContext(ctx, "Failed to mark dead letter", "event_id", dl.EventID, "err", mErr)
			}
			continue
		}
		resolved++
		if err = s.deadRepo.MarkResolved(ctx, dl.ID); err != nil {
			log.ErrorContext(ctx, "Failed to resolve dead letter", "event_id", dl.EventID, "err", err)
		}
	}
	return resolved, failed, nil
}
