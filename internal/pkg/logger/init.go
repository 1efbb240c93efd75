package logger

import (
	"Clubhouse/internal/api/config"
	"errors"
	"io"
	log "log/slog"
	"net"
	"os"
	"time"
)

var LogWriter io.Writer

// InitLogger 标准输出 JSON 日志，Logstash 可达时带 trace_id 的记录同时上报
func InitLogger(cfg config.LogstashConfig) {
	hStdout := log.NewJSONHandler(os.Stdout, &log.HandlerOptions{Level: log.LevelInfo})

	var finalHandler log.Handler = hStdout

	var conn net.Conn
	var err error
	if cfg.Address == "" {
		err = errors.New("logstash address not configured")
	} else {
		conn, err = net.DialTimeout("tcp", cfg.Address, 3*time.Second)
	}
	if err == nil {
		hRemote := log.NewJSONHandler(conn, &log.HandlerOptions{Level: log.LevelInfo}).
			WithAttrs([]log.Attr{
				log.String("target_index", cfg.Index),
				log.String("log_token", cfg.Token),
			})

		filterRemote := &RemoteFilterHandler{next: hRemote}

		finalHandler = &TeeHandler{
			handlers: []log.Handler{hStdout, filterRemote},
		}

		LogWriter = conn
	} else {
		LogWriter = os.Stdout
		log.Warn("Failed to connect to Logstash, logging to stdout only", "err", err)
	}

	logger := log.New(&ContextHandler{finalHandler})
	log.SetDefault(logger)
}
