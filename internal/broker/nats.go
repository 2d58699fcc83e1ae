package broker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "chat-engine",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NATS is the Broker used in multi-node deployments: topics map to NATS
// subjects, so a publish on one server reaches sessions subscribed on every
// other server. Per-subject ordering is provided by NATS itself.
type NATS struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription // "<topic>/<id>" -> subscription
}

// NewNATS connects to NATS with the given config and returns a ready broker.
// It returns an error if the initial connection fails.
func NewNATS(config NATSConfig) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATS{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Subscribe implements Broker. The subscription is keyed by (topic, id) so
// several sessions on the same server can subscribe to the same topic
// without overwriting each other.
func (b *NATS) Subscribe(topic Topic, id string, handler Handler) error {
	sub, err := b.conn.Subscribe(topic.String(), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}

	key := subKey(topic, id)
	b.mu.Lock()
	if old, exists := b.subs[key]; exists {
		_ = old.Unsubscribe()
	}
	b.subs[key] = sub
	b.mu.Unlock()
	return nil
}

// Unsubscribe implements Broker.
func (b *NATS) Unsubscribe(topic Topic, id string) error {
	key := subKey(topic, id)

	b.mu.Lock()
	sub, ok := b.subs[key]
	if ok {
		delete(b.subs, key)
	}
	b.mu.Unlock()

	if !ok {
		return ErrNotSubscribed
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", topic, err)
	}
	return nil
}

// Publish implements Broker.
func (b *NATS) Publish(topic Topic, data []byte) error {
	if err := b.conn.Publish(topic.String(), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (b *NATS) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	b.subs = make(map[string]*nats.Subscription)

	if err := b.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] broker closed")
}

func subKey(topic Topic, id string) string {
	return topic.String() + "/" + id
}
