package redis

import (
	"Clubhouse/internal/pkg/consts"
	"Clubhouse/internal/pkg/event"
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// UserChannel 用户个人事件频道
func UserChannel(userID uint64) string {
	return consts.IMUserKey + strconv.FormatUint(userID, 10)
}

// UserEventPublisher 把事件推送到每个接收者的个人频道，推送层订阅这些频道
type UserEventPublisher struct {
	rdb *redis.Client
}

func NewUserEventPublisher(rdb *redis.Client) *UserEventPublisher {
	return &UserEventPublisher{rdb: rdb}
}

func (s *UserEventPublisher) Publish(ctx context.Context, env *event.Envelope) error {
	if len(env.Recipients) == 0 {
		return nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	pipe := s.rdb.Pipeline()
	for _, uid := range env.Recipients {
		pipe.Publish(ctx, UserChannel(uid), data)
	}
	_, err = pipe.Exec(ctx)
	return err
}
