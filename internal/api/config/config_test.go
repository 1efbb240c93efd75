package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CLUBHOUSE_SERVER_PORT", "9090")
	t.Setenv("CLUBHOUSE_IM_MAX_PAGE_SIZE", "50")
	t.Setenv("CLUBHOUSE_IDENTITY_MODE", "http")
	t.Setenv("CLUBHOUSE_KAFKA_ENABLE", "true")

	require.NoError(t, LoadConfig())
	require.NotNil(t, Cfg)

	assert.Equal(t, 9090, Cfg.Server.Port)
	assert.Equal(t, 50, Cfg.IM.MaxPageSize)
	assert.Equal(t, "http", Cfg.Identity.Mode)
	assert.True(t, Cfg.Kafka.Enable)

	// 未覆盖的键取默认值
	assert.Equal(t, 20, Cfg.IM.DefaultPageSize)
	assert.Equal(t, "clubhouse-im-events", Cfg.Kafka.Producer.Topic)
	assert.Equal(t, "0 */30 * * * *", Cfg.IM.ReconcileCron)
	assert.Equal(t, 72, Cfg.JWT.ExpireHours)
}
