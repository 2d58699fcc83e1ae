package broker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewLocal()
	topic := ConversationTopic(1)

	var got1, got2 [][]byte
	b.Subscribe(topic, "s1", func(data []byte) { got1 = append(got1, data) })
	b.Subscribe(topic, "s2", func(data []byte) { got2 = append(got2, data) })

	if err := b.Publish(topic, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(got1) != 1 || string(got1[0]) != "hello" {
		t.Errorf("s1 delivery: %q", got1)
	}
	if len(got2) != 1 || string(got2[0]) != "hello" {
		t.Errorf("s2 delivery: %q", got2)
	}
}

func TestUnsubscribedSessionReceivesNothing(t *testing.T) {
	b := NewLocal()
	topic := ConversationTopic(2)

	var got [][]byte
	b.Subscribe(topic, "s1", func(data []byte) { got = append(got, data) })
	if err := b.Unsubscribe(topic, "s1"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	b.Publish(topic, []byte("after"))
	if len(got) != 0 {
		t.Errorf("unsubscribed session received %d events", len(got))
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	b := NewLocal()
	topic := ConversationTopic(3)

	b.Publish(topic, []byte("early"))

	var got [][]byte
	b.Subscribe(topic, "late", func(data []byte) { got = append(got, data) })
	b.Publish(topic, []byte("later"))

	if len(got) != 1 || string(got[0]) != "later" {
		t.Errorf("late subscriber should only see post-subscribe events, got %q", got)
	}
}

func TestPublishOrderPreservedPerTopic(t *testing.T) {
	b := NewLocal()
	topic := ConversationTopic(4)

	var got []string
	b.Subscribe(topic, "s1", func(data []byte) { got = append(got, string(data)) })

	for i := 0; i < 20; i++ {
		b.Publish(topic, []byte(fmt.Sprintf("e%d", i)))
	}

	for i, v := range got {
		if v != fmt.Sprintf("e%d", i) {
			t.Fatalf("order violated at %d: %q", i, v)
		}
	}
}

func TestPanickingSubscriberDoesNotAbortDelivery(t *testing.T) {
	b := NewLocal()
	topic := ConversationTopic(5)

	var survived bool
	b.Subscribe(topic, "bad", func([]byte) { panic("dead sink") })
	b.Subscribe(topic, "good", func([]byte) { survived = true })

	if err := b.Publish(topic, []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !survived {
		t.Error("healthy subscriber missed delivery after a peer panicked")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := NewLocal()
	topic := InboxTopic(9)

	if err := b.Unsubscribe(topic, "never"); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}

	b.Subscribe(topic, "s1", func([]byte) {})
	if err := b.Unsubscribe(topic, "s1"); err != nil {
		t.Fatalf("first unsubscribe: %v", err)
	}
	if err := b.Unsubscribe(topic, "s1"); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("second unsubscribe: expected ErrNotSubscribed, got %v", err)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := NewLocal()

	var convGot, inboxGot int
	b.Subscribe(ConversationTopic(1), "s1", func([]byte) { convGot++ })
	b.Subscribe(InboxTopic(1), "s1", func([]byte) { inboxGot++ })

	b.Publish(ConversationTopic(1), []byte("a"))
	if convGot != 1 || inboxGot != 0 {
		t.Errorf("cross-topic leak: conv=%d inbox=%d", convGot, inboxGot)
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := NewLocal()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topic := ConversationTopic(int64(i % 4))
			id := fmt.Sprintf("s%d", i)
			b.Subscribe(topic, id, func([]byte) {})
			for j := 0; j < 50; j++ {
				b.Publish(topic, []byte("x"))
			}
			b.Unsubscribe(topic, id)
		}(i)
	}
	wg.Wait()
}

func TestTopicConstructors(t *testing.T) {
	if got := ConversationTopic(42).String(); got != "conversation.42" {
		t.Errorf("conversation topic: %q", got)
	}
	if got := InboxTopic(7).String(); got != "inbox.7" {
		t.Errorf("inbox topic: %q", got)
	}
	if got := PresenceTopic(7).String(); got != "presence.7" {
		t.Errorf("presence topic: %q", got)
	}
}
