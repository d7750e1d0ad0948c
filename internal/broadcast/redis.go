package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const fileChannel = "nimbus:files"

// RedisBroadcaster publishes file-change events on a Redis pub/sub
// channel. UI gateways subscribe and push to connected clients.
type RedisBroadcaster struct {
	rdb *redis.Client
}

// NewRedisBroadcaster connects to Redis and verifies the connection.
func NewRedisBroadcaster(redisURL string) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisBroadcaster{rdb: rdb}, nil
}

// Broadcast publishes the event. Failures are logged and dropped; file
// notifications are best effort.
func (b *RedisBroadcaster) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("broadcast: marshal event: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, fileChannel, data).Err(); err != nil {
		log.Printf("broadcast: publish %s %s: %v", ev.Type, ev.Path, err)
	}
}

// Close releases the Redis connection.
func (b *RedisBroadcaster) Close() error {
	return b.rdb.Close()
}
