package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"codeshare/internal/models"
	"codeshare/internal/utils"
)

const (
	DefaultChannel   = "collab:activity"
	defaultQueueSize = 256
	publishTimeout   = 2 * time.Second
)

// Publisher announces session activity to other services.
type Publisher interface {
	Publish(event models.ActivityEvent)
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(models.ActivityEvent) {}

// RedisPublisher fans activity out over redis pub/sub. Publish only enqueues;
// Run performs the network writes so callers never block on redis.
type RedisPublisher struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	log        *utils.Logger
	queue      chan models.ActivityEvent

	mu      sync.Mutex
	dropped int
}

func NewRedisPublisher(rdb *redis.Client, channel, instanceID string, log *utils.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		rdb:        rdb,
		channel:    channel,
		instanceID: instanceID,
		log:        log,
		queue:      make(chan models.ActivityEvent, defaultQueueSize),
	}
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Publish(event models.ActivityEvent) {
	event.InstanceID = p.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.queue <- event:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.log.Warn("activity queue full, dropping event", "type", event.Type, "sessionId", event.SessionID)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (p *RedisPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Run publishes queued events until ctx is cancelled.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.queue:
			if err := p.send(ctx, event); err != nil {
				p.log.Error("failed to publish activity", "type", event.Type, "sessionId", event.SessionID, "error", err.Error())
			}
		}
	}
}

func (p *RedisPublisher) send(ctx context.Context, event models.ActivityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.rdb.Publish(ctx, p.channel, data).Err()
}
