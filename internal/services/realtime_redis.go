package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "chat:user:"
	presenceKeyPrefix = "presence:"
	presenceTTL       = 90 * time.Second
)

// ConnectRedis dials Redis with pool and timeout settings tuned for a small
// realtime workload.
func ConnectRedis(redisURI string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURI)
	if err != nil {
		return nil, err
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Connected to Redis")
	return client, nil
}

// RedisBridge spans the gap between instances: delivery events are published
// to per-user Redis channels, and a subscriber feeds whichever instance holds
// the target's live connection. With a single instance it degrades to a
// slightly indirect local delivery.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	started sync.Once
}

func NewRedisBridge(client *redis.Client, hub *Hub) *RedisBridge {
	return &RedisBridge{client: client, hub: hub}
}

// Deliver publishes the event to the target's personal channel.
func (b *RedisBridge) Deliver(ctx context.Context, targetUserID string, event DeliveryEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, userChannelPrefix+targetUserID, data).Err()
}

// Start launches the shared subscriber, once per instance.
func (b *RedisBridge) Start(ctx context.Context) {
	b.started.Do(func() {
		go b.run(ctx)
	})
}

func (b *RedisBridge) run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := b.client.PSubscribe(ctx, userChannelPrefix+"*")
			defer pubsub.Close()

			log.Println("Realtime Redis subscriber started (pattern: " + userChannelPrefix + "*)")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("Redis subscriber error: %v", err)
					time.Sleep(backoff)
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}
				backoff = time.Second

				userID := strings.TrimPrefix(msg.Channel, userChannelPrefix)
				var event DeliveryEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("failed to unmarshal delivery event: %v", err)
					continue
				}

				_ = b.hub.Deliver(ctx, userID, event)
			}
		}()
	}
}

// SetPresence refreshes the user's online marker; it expires on its own when
// the connection stops pinging.
func (b *RedisBridge) SetPresence(ctx context.Context, userID string) {
	if err := b.client.Set(ctx, presenceKeyPrefix+userID, "online", presenceTTL).Err(); err != nil {
		log.Printf("failed to set presence for user %s: %v", userID, err)
	}
}

// ClearPresence drops the marker on a clean disconnect.
func (b *RedisBridge) ClearPresence(ctx context.Context, userID string) {
	if err := b.client.Del(ctx, presenceKeyPrefix+userID).Err(); err != nil {
		log.Printf("failed to clear presence for user %s: %v", userID, err)
	}
}
