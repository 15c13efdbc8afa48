package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

// Publisher routes events either straight into the local hub or through a
// redis channel so every instance's hub sees them.
type Publisher struct {
	hub     *Hub
	redis   *redis.Client
	channel string
	log     *log.Logger
}

// NewPublisher creates a Publisher. With a nil redis client events go to the
// local hub only.
func NewPublisher(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Publisher {
	return &Publisher{hub: hub, redis: rc, channel: channel, log: logger}
}

// Broadcast publishes the event. Publish failures are logged, not returned;
// losing a push notification is never fatal to the caller.
func (p *Publisher) Broadcast(ev domain.Event) {
	if p.redis == nil {
		p.hub.Broadcast(ev)
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("marshal event: %v", err)
		return
	}
	if err := p.redis.Publish(context.Background(), p.channel, data).Err(); err != nil {
		p.log.Errorf("unable to publish %s event to %s: %v", ev.Type, p.channel, err)
		// Degrade to the local hub so this instance's clients still hear it.
		p.hub.Broadcast(ev)
	}
}

// SubscribeUpdates listens on the redis channel and replays events into the
// hub, re-subscribing after channel closure.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, hub *Hub) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
		for msg := range ch {
			var ev domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Errorf("unable to parse update: %v", err)
				continue
			}
			hub.Broadcast(ev)
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
