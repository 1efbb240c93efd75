package event

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"
)

var ErrDispatcherClosed = errors.New("event dispatcher closed")

// Options 分发器参数
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
}

// Dispatcher 事务提交后异步投递事件
// 每个事件最多尝试 MaxAttempts 次，间隔指数退避，失败后写入死信
type Dispatcher struct {
	pub  Publisher
	dead DeadLetterSink
	opts Options

	queue  chan *Envelope
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(pub Publisher, dead DeadLetterSink, opts Options) *Dispatcher {
	opts.normalize()
	d := &Dispatcher{
		pub:    pub,
		dead:   dead,
		opts:   opts,
		queue:  make(chan *Envelope, opts.QueueSize),
		stopCh: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch 入队，不阻塞调用方；队列满时直接转死信
func (d *Dispatcher) Dispatch(env *Envelope) error {
	if env == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- env:
		return nil
	default:
		log.Warn("Event queue full, sending to dead letter", "event_id", env.ID, "type", env.Type)
		d.deadLetter(env, "queue full")
		return nil
	}
}

// Deliver 同步投递并重试，死信重放也走这里
func (d *Dispatcher) Deliver(ctx context.Context, env *Envelope) error {
	backoff := d.opts.Backoff
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		pubCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		err = d.pub.Publish(pubCtx, env)
		cancel()
		if err == nil {
			return nil
		}
		log.WarnContext(ctx, "Event publish failed",
			"event_id", env.ID, "type", env.Type, "attempt", attempt, "err", err)
		if attempt == d.opts.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case env := <-d.queue:
			d.handle(env)
		case <-d.stopCh:
			// 退出前排空队列
			for {
				select {
				case env := <-d.queue:
					d.handle(env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) handle(env *Envelope) {
	if err := d.Deliver(context.Background(), env); err != nil {
		log.Error("Event delivery exhausted", "event_id", env.ID, "type", env.Type, "err", err)
		d.deadLetter(env, err.Error())
	}
}

func (d *Dispatcher) deadLetter(env *Envelope, reason string) {
	if d.dead == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	if err := d.dead.SaveDeadLetter(ctx, env, reason); err != nil {
		log.Error("Failed to save dead letter", "event_id", env.ID, "err", err)
	}
}

// Close 停止接收新事件，等待已入队事件处理完
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	log.Info("Event dispatcher shut down gracefully")
}
