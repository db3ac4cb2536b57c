package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/saransh1220/tableside-sync/internal/shared/infrastructure/metrics"
)

// Subscription is one live listener on a topic.
//
// Delivery and teardown share a lock: once Unsubscribe returns, the handler
// is not running and will never run again. Unsubscribe must therefore not be
// called from inside the subscription's own handler.
type Subscription struct {
	id      string
	topic   string
	handler Handler
	release func(*Subscription)

	state atomic.Int32

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newSubscription(topic string, handler Handler, release func(*Subscription)) *Subscription {
	s := &Subscription{
		id:      uuid.NewString(),
		topic:   topic,
		handler: handler,
		release: release,
	}
	s.setState(StateSubscribing)
	return s
}

func (s *Subscription) ID() string    { return s.id }
func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Unsubscribe tears the subscription down. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.markClosed()
		if s.release != nil {
			s.release(s)
		}
	})
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.setState(StateUnsubscribed)
}

func (s *Subscription) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	metrics.SubscriptionTransitions.WithLabelValues(st.String()).Inc()
}

// setLiveState moves a subscription between connection states unless it has
// already been torn down.
func (s *Subscription) setLiveState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setState(st)
}

func (s *Subscription) deliver(env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.handler(env)
	return true
}
