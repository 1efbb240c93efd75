package service

import (
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/model"
	"Clubhouse/internal/repository"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBUserResolver(t *testing.T) {
	f := newIMFixture(t, IMOptions{})
	ctx := context.Background()
	userRepo := repository.NewUserRepo(f.db)

	require.NoError(t, userRepo.CreateUser(ctx, &model.User{ID: 1, Nickname: "alice"}))
	require.NoError(t, userRepo.CreateUser(ctx, &model.User{ID: 2, Nickname: "banned", IsBan: true}))
	require.NoError(t, userRepo.CreateUser(ctx, &model.User{ID: 3, Nickname: "gone", IsDelete: true}))

	resolver := NewUserResolver(config.IdentityConfig{Mode: "db"}, userRepo)
	profiles, err := resolver.Resolve(ctx, []uint64{1, 2, 3, 4, 1, 0})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "alice", profiles[1].Nickname)

	empty, err := resolver.Resolve(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHTTPUserResolver(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/users", r.URL.Path)
		gotQuery = r.URL.Query().Get("ids")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"message":"ok","data":[
			{"id":1,"nickname":"alice","available":true},
			{"id":2,"nickname":"banned","available":false}
		]}`))
	}))
	defer srv.Close()

	resolver := NewUserResolver(config.IdentityConfig{Mode: "http", BaseURL: srv.URL, TimeoutSecs: 1}, nil)
	profiles, err := resolver.Resolve(context.Background(), []uint64{1, 2, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", gotQuery)
	require.Len(t, profiles, 1)
	assert.Equal(t, "alice", profiles[1].Nickname)
}

func TestHTTPUserResolver_BusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":500,"message":"db down","data":null}`))
	}))
	defer srv.Close()

	resolver := NewHTTPUserResolver(srv.URL, time.Second, 0)
	_, err := resolver.Resolve(context.Background(), []uint64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []uint64{3, 1, 2}, uniqueIDs([]uint64{3, 0, 1, 3, 2, 1}))
	assert.Empty(t, uniqueIDs(nil))
}
