package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// ChannelPrefix prefixes the redis pub/sub channel of each session.
const ChannelPrefix = "catalog:progress:"

// RedisHub carries events over redis pub/sub so a worker process can feed
// a listener held by the API process. Pub/sub drops messages nobody is
// subscribed to.
type RedisHub struct {
	client   redis.UniversalClient
	registry *registry
	options  options
	logger   logger.Logger
}

func NewRedisHub(client redis.UniversalClient, log logger.Logger, opts ...Option) *RedisHub {
	return &RedisHub{
		client:   client,
		registry: newRegistry(),
		options:  buildOptions(opts),
		logger:   log.Named("progress"),
	}
}

func channelFor(sessionID string) string {
	return ChannelPrefix + sessionID
}

func (h *RedisHub) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, channelFor(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to progress: %w", err)
	}

	sub := newSubscription(sessionID, h.options.buffer)
	sub.onClose = func() {
		h.registry.remove(sub)
		if err := pubsub.Close(); err != nil {
			h.logger.Debug("Failed to close pubsub", logger.Error(err))
		}
	}

	if old := h.registry.add(sub); old != nil {
		h.logger.Info("Replacing progress listener", logger.String("session_id", sessionID))
		old.Close()
	}

	go h.forward(pubsub, sub)
	return sub, nil
}

func (h *RedisHub) forward(pubsub *redis.PubSub, sub *Subscription) {
	ch := pubsub.Channel()
	for {
		select {
		case <-sub.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Warn("Malformed progress message", logger.Error(err))
				continue
			}
			select {
			case sub.events <- ev:
			case <-sub.done:
				return
			}
		}
	}
}

func (h *RedisHub) Publish(ctx context.Context, event models.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal progress event", logger.Error(err))
		return
	}

	receivers, err := h.client.Publish(ctx, channelFor(event.SessionID), data).Result()
	if err != nil {
		h.logger.Warn("Failed to publish progress event",
			logger.String("session_id", event.SessionID),
			logger.Error(err),
		)
		return
	}
	if receivers == 0 {
		h.logger.Debug("No progress listener, dropping event",
			logger.String("session_id", event.SessionID),
			logger.Int("step", event.Step),
		)
	}
}
