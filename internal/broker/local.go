package broker

import (
	"log"
	"sync"
)

// Local is an in-process Broker. Each topic owns its subscriber registry
// and lock, so publishes on unrelated conversations never contend. Used in
// single-node deployments and throughout the test suite; multi-node
// deployments use the NATS broker instead.
type Local struct {
	mu     sync.RWMutex // guards the topics map only
	topics map[Topic]*localTopic
}

type localTopic struct {
	mu    sync.Mutex
	subs  map[string]Handler
	order []string // subscriber ids in subscription order
}

// NewLocal creates an empty Local broker.
func NewLocal() *Local {
	return &Local{topics: make(map[Topic]*localTopic)}
}

// Subscribe implements Broker.
func (b *Local) Subscribe(topic Topic, id string, handler Handler) error {
	t := b.topic(topic, true)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.subs[id]; !exists {
		t.order = append(t.order, id)
	}
	t.subs[id] = handler
	return nil
}

// Unsubscribe implements Broker.
func (b *Local) Unsubscribe(topic Topic, id string) error {
	t := b.topic(topic, false)
	if t == nil {
		return ErrNotSubscribed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.subs[id]; !exists {
		return ErrNotSubscribed
	}
	delete(t.subs, id)
	for i, sid := range t.order {
		if sid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Publish implements Broker. Handlers run synchronously under the topic
// lock, which serializes delivery per topic: every subscriber observes
// events in publish order. A panicking subscriber is logged and skipped so
// it cannot abort delivery to the rest.
func (b *Local) Publish(topic Topic, data []byte) error {
	t := b.topic(topic, false)
	if t == nil {
		return nil // nobody listening
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.order {
		handler, ok := t.subs[id]
		if !ok {
			continue
		}
		deliver(topic, id, handler, data)
	}
	return nil
}

// deliver isolates a single subscriber invocation so one dead sink cannot
// take down the publish loop.
func deliver(topic Topic, id string, handler Handler, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broker: subscriber %s on %s panicked: %v", id, topic, r)
		}
	}()
	handler(data)
}

// topic returns the registry for a topic, creating it when create is set.
func (b *Local) topic(topic Topic, create bool) *localTopic {
	b.mu.RLock()
	t := b.topics[topic]
	b.mu.RUnlock()
	if t != nil || !create {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t = b.topics[topic]; t == nil {
		t = &localTopic{subs: make(map[string]Handler)}
		b.topics[topic] = t
	}
	return t
}
