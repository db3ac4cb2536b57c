package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/metrics"
)

// RedisTransport delivers topics over Redis Pub/Sub, one channel per topic.
// go-redis re-establishes dropped Pub/Sub connections on its own; like the
// STOMP transport there is no replay of messages missed in between.
type RedisTransport struct {
	client *redis.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisTransport{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*Subscription),
	}
}

func (t *RedisTransport) Subscribe(topic string, handler Handler) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrTransportStopped
	}

	ps := t.client.Subscribe(t.ctx, topic)
	if _, err := ps.Receive(t.ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	sub := newSubscription(topic, handler, func(s *Subscription) {
		t.mu.Lock()
		delete(t.subs, s.id)
		t.mu.Unlock()
		if err := ps.Close(); err != nil {
			log.Printf("[RedisTransport] Closing %s: %v", s.topic, err)
		}
	})
	sub.setState(StateSubscribed)

	t.mu.Lock()
	t.subs[sub.id] = sub
	t.mu.Unlock()

	go t.pump(sub, ps)
	return sub, nil
}

func (t *RedisTransport) pump(sub *Subscription, ps *redis.PubSub) {
	for msg := range ps.Channel() {
		env, err := DecodeEnvelope([]byte(msg.Payload))
		if err != nil {
			metrics.MessagesReceived.WithLabelValues("redis", "malformed").Inc()
			log.Printf("[RedisTransport] Dropping message on %s: %v", msg.Channel, err)
			continue
		}
		if sub.deliver(env) {
			metrics.MessagesReceived.WithLabelValues("redis", "delivered").Inc()
		}
	}
}

// Close unsubscribes everything; the Redis client itself stays open.
func (t *RedisTransport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := make([]*Subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	t.cancel()
}
