package wire

import (
	"Clubhouse/internal/api"
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/api/handler"
	"Clubhouse/internal/job"
	"Clubhouse/internal/pkg/cron"
	"Clubhouse/internal/pkg/event"
	"Clubhouse/internal/pkg/kafka"
	"Clubhouse/internal/pkg/mongo"
	"Clubhouse/internal/pkg/redis"
	"Clubhouse/internal/pkg/security"
	"Clubhouse/internal/repository"
	"Clubhouse/internal/service"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router     *gin.Engine
	DB         *gorm.DB
	IMService  service.IMService
	Dispatcher *event.Dispatcher
	CronMgr    *cron.Manager

	producer *kafka.EventProducer
}

// BuildApplication mongoDB 为空时不落死信，Redis/Kafka 按配置接入事件出口
func BuildApplication(db *gorm.DB, mongoDB *mongodrv.Database, cfg *config.Config) (*ApplicationContainer, error) {
	tm, err := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireHours)*time.Hour)
	if err != nil {
		return nil, err
	}

	tx := repository.NewTransaction(db)
	convRepo := repository.NewConversationRepo(db)
	partRepo := repository.NewParticipantRepo(db)
	msgRepo := repository.NewMessageRepo(db)
	receiptRepo := repository.NewReadReceiptRepo(db)
	userRepo := repository.NewUserRepo(db)

	// 事件出口
	publishers := make([]event.Publisher, 0, 2)
	if redis.Enabled() {
		publishers = append(publishers, redis.NewUserEventPublisher(redis.Rdb))
	}
	var producer *kafka.EventProducer
	if cfg.Kafka.Enable {
		producer, err = kafka.NewEventProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, producer)
	}
	tee := event.NewTeePublisher(publishers...)
	if tee.Len() == 0 {
		log.Warn("No event publisher configured, IM events will be dropped")
	}

	var deadRepo mongo.DeadLetterRepo
	var deadSink event.DeadLetterSink
	if mongoDB != nil {
		deadRepo = mongo.NewDeadLetterRepo(mongoDB)
		deadSink = deadRepo
	}
	dispatcher := event.NewDispatcher(tee, deadSink, event.Options{
		Workers:     cfg.IM.EventWorkers,
		QueueSize:   cfg.IM.EventQueueSize,
		MaxAttempts: cfg.IM.EventMaxAttempts,
		Backoff:     time.Duration(cfg.IM.EventBackoffMs) * time.Millisecond,
	})

	users := service.NewUserResolver(cfg.Identity, userRepo)
	imService := service.NewIMService(tx, convRepo, partRepo, msgRepo, receiptRepo, users, dispatcher, service.IMOptions{
		DefaultPageSize: cfg.IM.DefaultPageSize,
		MaxPageSize:     cfg.IM.MaxPageSize,
	})

	handlers := &api.HandlersGroup{
		IMHandler: handler.NewIMHandler(imService),
	}
	router := api.SetupRouter(handlers, tm, cfg)

	reconcileJob := job.NewUnreadReconcileJob(convRepo, imService)
	var redeliverJob *job.EventRedeliverJob
	if deadRepo != nil {
		redeliverJob = job.NewEventRedeliverJob(deadRepo, dispatcher)
	}
	cronMgr := cron.NewCronManager(cfg.IM, reconcileJob, redeliverJob)

	return &ApplicationContainer{
		Router:     router,
		DB:         db,
		IMService:  imService,
		Dispatcher: dispatcher,
		CronMgr:    cronMgr,
		producer:   producer,
	}, nil
}

// Close 先停事件分发（排空队列），再关闭 Kafka 生产者
func (s *ApplicationContainer) Close() {
	s.Dispatcher.Close()
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			log.Error("Kafka producer close failed", "err", err)
		}
	}
}
