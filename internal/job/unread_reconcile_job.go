package job

import (
	"Clubhouse/internal/pkg/consts"
	"Clubhouse/internal/pkg/logger"
	"Clubhouse/internal/pkg/redis"
	"Clubhouse/internal/repository"
	"Clubhouse/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const reconcileBatch = 200

// UnreadReconcileJob 定期从消息与回执重算未读数，修正漂移
type UnreadReconcileJob struct {
	convRepo  repository.ConversationRepo
	imService service.IMService
}

func NewUnreadReconcileJob(convRepo repository.ConversationRepo, imService service.IMService) *UnreadReconcileJob {
	return &UnreadReconcileJob{
		convRepo:  convRepo,
		imService: imService,
	}
}

func (s *UnreadReconcileJob) Run() {
	traceID := "job-unread-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	if redis.Enabled() {
		ok, err := redis.TryLock(ctx, consts.IMUnreadReconcile, traceID, 10*time.Minute, 1)
		if err != nil || !ok {
			log.InfoContext(ctx, "UnreadReconcileJob skipped, another instance is running", "err", err)
			return
		}
		defer redis.UnLock(ctx, consts.IMUnreadReconcile, traceID)
	}

	start := time.Now()
	scanned, drifted, err := s.Reconcile(ctx)
	if err != nil {
		log.ErrorContext(ctx, "UnreadReconcileJob failed", "err", err)
		return
	}
	log.InfoContext(ctx, "UnreadReconcileJob finished",
		"conversations", scanned, "drifted", drifted, "latency", time.Since(start))
}

// Reconcile 按会话 ID 游标遍历，单个会话失败不中断
func (s *UnreadReconcileJob) Reconcile(ctx context.Context) (int, int, error) {
	var afterID uint64
	scanned, drifted := 0, 0
	for {
		ids, err := s.convRepo.ListActiveConversationIDs(ctx, afterID, reconcileBatch)
		if err != nil {
			return scanned, drifted, err
		}
		if len(ids) == 0 {
			return scanned, drifted, nil
		}
		for _, id := range ids {
			n, err := s.imService.RecomputeUnread(ctx, id)
			if err != nil {
				log.ErrorContext(ctx, "Recompute unread failed", "conversation_id", id, "err", err)
				continue
			}
			scanned++
			drifted += n
		}
		afterID = ids[len(ids)-1]
		if err = ctx.Err(); err != nil {
			return scanned, drifted, err
		}
	}
}
