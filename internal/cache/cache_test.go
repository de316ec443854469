package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func TestAside(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	ctx := context.Background()
	calls := 0
	fetch := func(dest *entry) func() error {
		return func() error {
			calls++
			*dest = entry{ID: 1, Title: "first"}
			return nil
		}
	}

	var first entry
	require.NoError(t, Aside(ctx, rdb, PostKey(1), &first, time.Minute, fetch(&first)))
	var second entry
	require.NoError(t, Aside(ctx, rdb, PostKey(1), &second, time.Minute, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, mr.TTL("post:1"))

	Invalidate(ctx, rdb, PostKey(1))
	assert.False(t, mr.Exists("post:1"))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()

	var dest entry
	boom := errors.New("store down")
	err = Aside(context.Background(), rdb, PostKey(2), &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("post:2"))
}

func TestAside_NilClientFetchesDirectly(t *testing.T) {
	var dest entry
	err := Aside(context.Background(), nil, PostKey(3), &dest, time.Minute, func() error {
		dest = entry{ID: 3}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint(3), dest.ID)
}

func TestInitRedis_Unreachable(t *testing.T) {
	assert.Nil(t, InitRedis("127.0.0.1:1"))
	assert.Nil(t, GetClient())

	var rdb *redis.Client = InitRedis("redis://%zz")
	assert.Nil(t, rdb)
}
