package kafka

import (
	"Clubhouse/internal/api/config"
	"time"

	"github.com/IBM/sarama"
)

// newSaramaConfig 统一初始化生产者使用的 sarama.Config
func newSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}

	// 同一会话的事件落在同一分区，保证会话内有序
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true

	if kafkaCfg.Producer.MaxRetry > 0 {
		c.Producer.Retry.Max = kafkaCfg.Producer.MaxRetry
	}
	if kafkaCfg.Producer.TimeoutSecs > 0 {
		c.Producer.Timeout = time.Duration(kafkaCfg.Producer.TimeoutSecs) * time.Second
	}

	return c
}
