package terminalfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink receives events relayed from peer replicas.
type Sink interface {
	Inject(ev Event)
}

// Bus relays feed events between gateway replicas. The local feed always
// delivers its own events directly; the bus only carries them across
// instances.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// RedisBus relays events over a Redis pub/sub channel. Every replica
// publishes its lines and subscribes to the shared channel, skipping its own
// messages by instance id.
type RedisBus struct {
	client   *redis.Client
	channel  string
	instance string
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus creates a bus on the given channel.
func NewRedisBus(addr, channel, instance string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Second,
		}),
		channel:  channel,
		instance: instance,
		logger:   logger.With("component", "terminalfeed.bus"),
		done:     make(chan struct{}),
	}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	encoded, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, encoded).Err()
}

// Start begins relaying channel messages into sink. The go-redis pub/sub
// connection reconnects on its own; the loop just keeps draining it.
func (b *RedisBus) Start(ctx context.Context, sink Sink) {
	ctx, b.cancel = context.WithCancel(ctx)
	pubsub := b.client.Subscribe(ctx, b.channel)

	go func() {
		defer close(b.done)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed bus event", "error", err)
					continue
				}
				// Locally published events already reached the local
				// feed; only peer events are injected.
				if ev.Instance == b.instance {
					continue
				}
				sink.Inject(ev)
			}
		}
	}()
	b.logger.Info("terminal feed bus started", "channel", b.channel, "instance", b.instance)
}

// Close stops the relay loop and releases the Redis client.
func (b *RedisBus) Close() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return b.client.Close()
}
