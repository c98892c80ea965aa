package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	redisLib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newMiniCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisLib.NewClient(&redisLib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, nil), mr
}

func TestCache_SetGet(t *testing.T) {
	c, mr := newMiniCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a", Count: 2}, time.Minute))

	var got payload
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Versions(t *testing.T) {
	c, _ := newMiniCache(t)
	ctx := context.Background()

	assert.Equal(t, int64(0), c.GetVersion(ctx, "user:1:docs:version"))
	c.IncrementVersion(ctx, "user:1:docs:version")
	c.IncrementVersion(ctx, "user:1:docs:version")
	assert.Equal(t, int64(2), c.GetVersion(ctx, "user:1:docs:version"))
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(nil, nil)
	ctx := context.Background()

	assert.False(t, c.Enabled())
	assert.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	found, err := c.Get(ctx, "k", new(int))
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), c.GetVersion(ctx, "v"))
	c.IncrementVersion(ctx, "v")
	assert.NoError(t, c.Ping(ctx))
}

func TestCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewCache(db, nil)

	mock.ExpectGet("k").SetErr(assert.AnError)
	found, err := c.Get(context.Background(), "k", new(int))
	assert.Error(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_IncrementVersion_Mock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewCache(db, nil)

	mock.ExpectIncr("user:7:docs:version").SetVal(3)
	c.IncrementVersion(context.Background(), "user:7:docs:version")
	assert.NoError(t, mock.ExpectationsWereMet())
}
