// Package broker provides topic-based publish/subscribe fan-out for the
// conversation engine. Delivery is at-least-once to currently-subscribed
// sessions only: there is no durable queueing, and a subscriber that joins
// after a publish never sees that event. Offline users catch up through the
// message store on reconnect.
package broker

import "errors"

// Handler receives one published event. Handlers for the same topic are
// invoked in publish order.
type Handler func(data []byte)

// ErrNotSubscribed is returned by Unsubscribe when the subscriber id has no
// subscription on the topic. Teardown paths treat it as a no-op.
var ErrNotSubscribed = errors.New("not subscribed")

// Broker is the shared fan-out surface. Implementations must be safe for
// concurrent use by arbitrarily many sessions, synchronized per topic rather
// than behind one global lock.
type Broker interface {
	// Subscribe registers handler under (topic, id). A second Subscribe
	// with the same id on the same topic replaces the previous handler.
	Subscribe(topic Topic, id string, handler Handler) error

	// Unsubscribe removes the (topic, id) subscription. Returns
	// ErrNotSubscribed when there is nothing to remove.
	Unsubscribe(topic Topic, id string) error

	// Publish delivers data to every current subscriber of topic,
	// preserving per-topic publish order. A failing or panicking
	// subscriber must not prevent delivery to the others.
	Publish(topic Topic, data []byte) error
}
