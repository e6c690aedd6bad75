package network

import (
	"sync"
)

// MemoryPubSub is a process-local transport used for loopback runs and tests.
type MemoryPubSub struct {
	mu     sync.RWMutex
	nextID int
	closed bool
	buffer int
	subs   map[string]map[int]chan Message
}

func NewMemoryPubSub() *MemoryPubSub {
	return NewMemoryPubSubSize(64)
}

// NewMemoryPubSubSize sets the per-subscription buffer.
func NewMemoryPubSubSize(buffer int) *MemoryPubSub {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryPubSub{buffer: buffer, subs: make(map[string]map[int]chan Message)}
}

func (m *MemoryPubSub) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for _, ch := range m.subs[topic] {
		msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case ch <- msg:
		default:
			// Non-blocking send to avoid one slow subscriber stalling all publishers.
		}
	}
	return nil
}

func (m *MemoryPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	if topic == "" {
		return nil, nil, ErrEmptyTopic
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}
	if _, ok := m.subs[topic]; !ok {
		m.subs[topic] = make(map[int]chan Message)
	}
	id := m.nextID
	m.nextID++
	ch := make(chan Message, m.buffer)
	m.subs[topic][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subsByTopic, ok := m.subs[topic]; ok {
			if sub, exists := subsByTopic[id]; exists {
				delete(subsByTopic, id)
				close(sub)
			}
			if len(subsByTopic) == 0 {
				delete(m.subs, topic)
			}
		}
	}
	return ch, cancel, nil
}

// Close ends every subscription; later calls fail with ErrClosed.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for topic, subsByTopic := range m.subs {
		for id, ch := range subsByTopic {
			close(ch)
			delete(subsByTopic, id)
		}
		delete(m.subs, topic)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (m *MemoryPubSub) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}
