package ws

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type relayMessage struct {
	ConnectionID string          `json:"connection_id"`
	Frame        json.RawMessage `json:"frame"`
}

// RedisRelay carries frames between server instances over a Redis channel. Every
// instance subscribes and delivers the frames addressed to its own connections.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, log: log.Named("relay")}
}

func (r *RedisRelay) Publish(connectionID string, frame []byte) error {
	b, err := json.Marshal(relayMessage{ConnectionID: connectionID, Frame: frame})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run delivers relayed frames until ctx is done. ready is closed once the
// subscription is active.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Warn("bad relay message", zap.Error(err))
				continue
			}
			r.hub.DeliverLocal(m.ConnectionID, m.Frame)
		}
	}
}
