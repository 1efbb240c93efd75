package cron

import (
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine       *cron.Cron
	cfg          config.IMConfig
	reconcileJob *job.UnreadReconcileJob
	redeliverJob *job.EventRedeliverJob
}

// NewCronManager redeliverJob 可为空（未启用 Mongo 时没有死信）
func NewCronManager(cfg config.IMConfig, reconcileJob *job.UnreadReconcileJob, redeliverJob *job.EventRedeliverJob) *Manager {
	return &Manager{
		engine:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:          cfg,
		reconcileJob: reconcileJob,
		redeliverJob: redeliverJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if s.reconcileJob != nil && s.cfg.ReconcileCron != "" {
		if _, err := s.engine.AddJob(s.cfg.ReconcileCron, s.reconcileJob); err != nil {
			return err
		}
	}
	if s.redeliverJob != nil && s.cfg.RedeliverCron != "" {
		if _, err := s.engine.AddJob(s.cfg.RedeliverCron, s.redeliverJob); err != nil {
			return err
		}
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron engine started", "jobs", len(s.engine.Entries()))
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron engine stopping")
	<-s.engine.Stop().Done()
}
