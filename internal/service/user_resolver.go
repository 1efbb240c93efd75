package service

import (
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/pkg/consts"
	"Clubhouse/internal/pkg/redis"
	"Clubhouse/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// UserProfile 私信模块需要的用户信息
type UserProfile struct {
	ID       uint64 `json:"id"`
	Nickname string `json:"nickname"`
}

// UserResolver 身份服务，只返回可用（存在且未封禁、未注销）的用户
type UserResolver interface {
	Resolve(ctx context.Context, ids []uint64) (map[uint64]*UserProfile, error)
}

// NewUserResolver 根据配置选择身份来源
func NewUserResolver(cfg config.IdentityConfig, userRepo repository.UserRepo) UserResolver {
	ttl := time.Duration(cfg.CacheSecs) * time.Second
	if cfg.Mode == "http" && cfg.BaseURL != "" {
		return NewHTTPUserResolver(cfg.BaseURL, time.Duration(cfg.TimeoutSecs)*time.Second, ttl)
	}
	return NewDBUserResolver(userRepo, ttl)
}

type dbUserResolver struct {
	userRepo repository.UserRepo
	ttl      time.Duration
}

func NewDBUserResolver(userRepo repository.UserRepo, ttl time.Duration) UserResolver {
	return &dbUserResolver{userRepo: userRepo, ttl: ttl}
}

func (s *dbUserResolver) Resolve(ctx context.Context, ids []uint64) (map[uint64]*UserProfile, error) {
	return resolveWithCache(ctx, ids, s.ttl, func(ctx context.Context, miss []uint64) ([]*UserProfile, error) {
		users, err := s.userRepo.GetUserByIds(ctx, miss)
		if err != nil {
			return nil, err
		}
		list := make([]*UserProfile, 0, len(users))
		for _, u := range users {
			if u.IsBan || u.IsDelete {
				continue
			}
			list = append(list, &UserProfile{ID: u.ID, Nickname: u.Nickname})
		}
		return list, nil
	})
}

type httpUserResolver struct {
	client *resty.Client
	ttl    time.Duration
}

// NewHTTPUserResolver 通过平台用户服务解析用户
func NewHTTPUserResolver(baseURL string, timeout, ttl time.Duration) UserResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetHeader("Accept", "application/json")
	return &httpUserResolver{client: client, ttl: ttl}
}

type userServiceResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		ID        uint64 `json:"id"`
		Nickname  string `json:"nickname"`
		Available bool   `json:"available"`
	} `json:"data"`
}

func (s *httpUserResolver) Resolve(ctx context.Context, ids []uint64) (map[uint64]*UserProfile, error) {
	return resolveWithCache(ctx, ids, s.ttl, func(ctx context.Context, miss []uint64) ([]*UserProfile, error) {
		parts := make([]string, len(miss))
		for i, id := range miss {
			parts[i] = strconv.FormatUint(id, 10)
		}

		var body userServiceResp
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParam("ids", strings.Join(parts, ",")).
			Get("/internal/users")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("user service status %d", resp.StatusCode())
		}
		if err = json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, err
		}
		if body.Code != 200 {
			return nil, fmt.Errorf("user service code %d: %s", body.Code, body.Message)
		}

		list := make([]*UserProfile, 0, len(body.Data))
		for _, u := range body.Data {
			if !u.Available {
				continue
			}
			list = append(list, &UserProfile{ID: u.ID, Nickname: u.Nickname})
		}
		return list, nil
	})
}

type loadFunc func(ctx context.Context, ids []uint64) ([]*UserProfile, error)

// resolveWithCache Redis 缓存可用用户，未启用 Redis 时直接回源
func resolveWithCache(ctx context.Context, ids []uint64, ttl time.Duration, load loadFunc) (map[uint64]*UserProfile, error) {
	res := make(map[uint64]*UserProfile, len(ids))
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return res, nil
	}

	miss := ids
	useCache := redis.Enabled() && ttl > 0
	if useCache {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = consts.IMUserProfileKey + strconv.FormatUint(id, 10)
		}
		values, err := redis.MGetValues(ctx, keys)
		if err != nil {
			log.WarnContext(ctx, "Failed to read user profile cache", "err", err)
		} else {
			miss = make([]uint64, 0, len(ids))
			for i, v := range values {
				var p UserProfile
				if v == "" || json.Unmarshal([]byte(v), &p) != nil {
					miss = append(miss, ids[i])
					continue
				}
				res[p.ID] = &p
			}
		}
	}
	if len(miss) == 0 {
		return res, nil
	}

	loaded, err := load(ctx, miss)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		res[p.ID] = p
		if useCache {
			data, _ := json.Marshal(p)
			key := consts.IMUserProfileKey + strconv.FormatUint(p.ID, 10)
			if err = redis.SetWithExpiration(ctx, key, data, ttl); err != nil {
				log.WarnContext(ctx, "Failed to cache user profile", "user_id", p.ID, "err", err)
			}
		}
	}
	return res, nil
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
