package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg，环境变量 CLUBHOUSE_* 优先
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("CLUBHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// setDefaults 默认值同时让 AutomaticEnv 能识别到这些键
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_lifetime", 30)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.enable", true)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("mongo.enable", true)
	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "clubhouse")
	v.SetDefault("mongo.timeout", 10)
	v.SetDefault("kafka.enable", false)
	v.SetDefault("kafka.producer.topic", "clubhouse-im-events")
	v.SetDefault("kafka.producer.max_retry", 3)
	v.SetDefault("kafka.producer.timeout_secs", 5)
	v.SetDefault("logstash.address", "")
	v.SetDefault("logstash.index", "logstash-clubhouse")
	v.SetDefault("logstash.token", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("identity.mode", "db")
	v.SetDefault("identity.base_url", "")
	v.SetDefault("identity.timeout_secs", 3)
	v.SetDefault("identity.cache_secs", 300)
	v.SetDefault("im.event_workers", 4)
	v.SetDefault("im.event_queue_size", 1024)
	v.SetDefault("im.event_max_attempts", 3)
	v.SetDefault("im.event_backoff_ms", 200)
	v.SetDefault("im.reconcile_cron", "0 */30 * * * *")
	v.SetDefault("im.redeliver_cron", "0 */5 * * * *")
	v.SetDefault("im.default_page_size", 20)
	v.SetDefault("im.max_page_size", 100)
}
