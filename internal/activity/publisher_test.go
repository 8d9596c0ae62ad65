package activity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshare/internal/models"
	"codeshare/internal/utils"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPublisherDeliversEvents(t *testing.T) {
	rdb := setupTestRedis(t)
	pub := NewRedisPublisher(rdb, "", "instance-1", utils.NewNopLogger())
	assert.Equal(t, DefaultChannel, pub.Channel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := rdb.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	go pub.Run(ctx)
	pub.Publish(models.ActivityEvent{Type: models.ActivityUserJoined, SessionID: "s1", UserID: "c1", UserName: "Ada"})

	select {
	case msg := <-sub.Channel():
		var got models.ActivityEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, models.ActivityUserJoined, got.Type)
		assert.Equal(t, "s1", got.SessionID)
		assert.Equal(t, "c1", got.UserID)
		assert.Equal(t, "instance-1", got.InstanceID)
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("expected activity event on redis channel")
	}
}

func TestRedisPublisherDropsWhenQueueFull(t *testing.T) {
	rdb := setupTestRedis(t)
	pub := NewRedisPublisher(rdb, "custom", "i", utils.NewNopLogger())

	for i := 0; i < defaultQueueSize+3; i++ {
		pub.Publish(models.ActivityEvent{Type: models.ActivitySessionCreated, SessionID: "s"})
	}
	assert.Equal(t, 3, pub.Dropped())
}

func TestRedisPublisherStopsOnCancel(t *testing.T) {
	rdb := setupTestRedis(t)
	pub := NewRedisPublisher(rdb, "custom", "i", utils.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(models.ActivityEvent{Type: models.ActivitySessionEvicted})
}
