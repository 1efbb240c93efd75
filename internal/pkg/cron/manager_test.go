package cron

import (
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/job"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterJobs(t *testing.T) {
	reconcile := job.NewUnreadReconcileJob(nil, nil)
	redeliver := job.NewEventRedeliverJob(nil, nil)

	mgr := NewCronManager(config.IMConfig{
		ReconcileCron: "0 */30 * * * *",
		RedeliverCron: "0 */5 * * * *",
	}, reconcile, redeliver)
	require.NoError(t, mgr.RegisterJobs())
	assert.Len(t, mgr.engine.Entries(), 2)

	// 未启用死信时只注册对账任务
	mgr = NewCronManager(config.IMConfig{
		ReconcileCron: "0 */30 * * * *",
		RedeliverCron: "0 */5 * * * *",
	}, reconcile, nil)
	require.NoError(t, mgr.RegisterJobs())
	assert.Len(t, mgr.engine.Entries(), 1)

	mgr = NewCronManager(config.IMConfig{ReconcileCron: ""}, reconcile, redeliver)
	require.NoError(t, mgr.RegisterJobs())
	assert.Empty(t, mgr.engine.Entries())
}

func TestManager_InvalidSpec(t *testing.T) {
	mgr := NewCronManager(config.IMConfig{ReconcileCron: "every minute"}, job.NewUnreadReconcileJob(nil, nil), nil)
	assert.Error(t, mgr.RegisterJobs())
}

func TestManager_StartStop(t *testing.T) {
	mgr := NewCronManager(config.IMConfig{ReconcileCron: "0 0 3 * * *"}, job.NewUnreadReconcileJob(nil, nil), nil)
	require.NoError(t, InitCron(mgr))
	assert.Len(t, mgr.engine.Entries(), 1)
	mgr.Stop()
}
