package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"feedline/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedPublisher_LocalHub(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(0, nil)
	require.NoError(t, err)

	p := NewFeedPublisher(hub, NewNotifier(nil))
	require.NoError(t, p.Publish(context.Background(), models.NewFeedEvent(models.FeedActionDelete, uint(5))))

	var got map[string]any
	require.NoError(t, json.Unmarshal(<-c.Send, &got))
	assert.Equal(t, "posts", got["channel"])
	assert.Equal(t, "delete", got["action"])
	assert.EqualValues(t, 5, got["post"])
}

func TestFeedPublisher_RedisFanOut(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	notifier := NewNotifier(rdb)
	require.NoError(t, hub.StartWiring(ctx, notifier))

	c, err := hub.Register(4, nil)
	require.NoError(t, err)

	p := NewFeedPublisher(hub, notifier)
	post := models.Post{ID: 9, Title: "A", CreatorID: 4, Creator: &models.User{ID: 4, Name: "Max"}}
	require.NoError(t, p.Publish(ctx, models.NewFeedEvent(models.FeedActionCreate, post)))

	select {
	case raw := <-c.Send:
		var got struct {
			Action string `json:"action"`
			Post   struct {
				ID      uint `json:"id"`
				Creator struct {
					Name string `json:"name"`
				} `json:"creator"`
			} `json:"post"`
		}
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "create", got.Action)
		assert.Equal(t, uint(9), got.Post.ID)
		assert.Equal(t, "Max", got.Post.Creator.Name)
	case <-time.After(time.Second):
		t.Fatal("feed event was not fanned out")
	}

	// Delivered exactly once through Redis.
	assert.Never(t, func() bool { return len(c.Send) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestFeedPublisher_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	p := NewFeedPublisher(NewHub(), NewNotifier(rdb))
	err = p.Publish(context.Background(), models.NewFeedEvent(models.FeedActionUpdate, models.Post{ID: 1}))
	assert.Error(t, err)
}

func TestNotifier_Disabled(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishFeed(context.Background(), []byte("x")))
	assert.NoError(t, n.StartFeedSubscriber(context.Background(), func(string) {}))
}
