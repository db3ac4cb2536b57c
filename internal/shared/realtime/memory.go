package realtime

import (
	"sync"
)

// MemoryTransport delivers published envelopes to in-process subscribers
// synchronously. It backs tests and single-process setups where events come
// from the same binary.
type MemoryTransport struct {
	mu     sync.Mutex
	topics map[string]map[string]*Subscription
	closed bool
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{topics: make(map[string]map[string]*Subscription)}
}

func (m *MemoryTransport) Subscribe(topic string, handler Handler) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrTransportStopped
	}

	sub := newSubscription(topic, handler, m.release)
	if m.topics[topic] == nil {
		m.topics[topic] = make(map[string]*Subscription)
	}
	m.topics[topic][sub.id] = sub
	sub.setLiveState(StateSubscribed)
	return sub, nil
}

// Publish hands env to every live subscriber of topic and reports how many
// received it.
func (m *MemoryTransport) Publish(topic string, env Envelope) int {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.topics[topic]))
	for _, sub := range m.topics[topic] {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if sub.deliver(env) {
			delivered++
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on topic.
func (m *MemoryTransport) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[topic])
}

// Disconnect moves every subscription to the disconnected state, as a
// dropped broker connection would.
func (m *MemoryTransport) Disconnect() {
	for _, sub := range m.all() {
		sub.setLiveState(StateDisconnected)
	}
}

// Reconnect restores every subscription after Disconnect.
func (m *MemoryTransport) Reconnect() {
	for _, sub := range m.all() {
		sub.setLiveState(StateReconnecting)
		sub.setLiveState(StateSubscribed)
	}
}

func (m *MemoryTransport) Close() {
	m.mu.Lock()
	m.closed = true
	topics := m.topics
	m.topics = make(map[string]map[string]*Subscription)
	m.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.once.Do(sub.markClosed)
		}
	}
}

func (m *MemoryTransport) all() []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []*Subscription
	for _, byID := range m.topics {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (m *MemoryTransport) release(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byID, ok := m.topics[sub.topic]; ok {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(m.topics, sub.topic)
		}
	}
}
