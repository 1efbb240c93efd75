package event

import (
	"context"
	"errors"
)

// Publisher 事件出口：Redis 频道、Kafka topic 等
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
}

// DeadLetterSink 重试耗尽的事件落地处
type DeadLetterSink interface {
	SaveDeadLetter(ctx context.Context, env *Envelope, reason string) error
}

// PublisherFunc 函数适配
type PublisherFunc func(ctx context.Context, env *Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env *Envelope) error {
	return f(ctx, env)
}

// TeePublisher 依次投递到所有出口，任一失败即整体失败
type TeePublisher struct {
	publishers []Publisher
}

func NewTeePublisher(publishers ...Publisher) *TeePublisher {
	list := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			list = append(list, p)
		}
	}
	return &TeePublisher{publishers: list}
}

func (s *TeePublisher) Publish(ctx context.Context, env *Envelope) error {
	var errs []error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TeePublisher) Len() int {
	return len(s.publishers)
}
