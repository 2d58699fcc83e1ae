// Command loadtest drives concurrent conversation pairs against a running
// chat engine and reports connect and message round-trip latencies. Each
// pair opens two WebSocket sessions on the same conversation; one side sends
// numbered messages while the other records the delivery latency.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/swapnest/chat-engine/loadtest/client"
	"github.com/swapnest/chat-engine/loadtest/stats"
)

func main() {
	var (
		baseURL  = flag.String("url", "ws://localhost:8080", "chat engine base URL")
		pairs    = flag.Int("pairs", 50, "number of concurrent conversation pairs")
		messages = flag.Int("messages", 20, "messages sent per pair")
		interval = flag.Duration("interval", 200*time.Millisecond, "delay between messages")
		timeout  = flag.Duration("timeout", 2*time.Minute, "overall test deadline")
	)
	flag.Parse()

	log.Printf("loadtest: %d pairs x %d messages against %s", *pairs, *messages, *baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	collector := stats.NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		// Users 1..2N must exist in the users table.
		userA := int64(2*i + 1)
		userB := int64(2*i + 2)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runPair(ctx, *baseURL, userA, userB, *messages, *interval, collector); err != nil {
				log.Printf("pair (%d,%d): %v", userA, userB, err)
				collector.AddError()
			}
		}()
	}

	wg.Wait()
	collector.Report()
}

// runPair connects both participants of one conversation, sends messages
// from A, and waits until B has observed all of them.
func runPair(ctx context.Context, baseURL string, userA, userB int64, messages int, interval time.Duration, collector *stats.Collector) error {
	room := fmt.Sprintf("conversation_%d_%d", userA, userB)
	url := baseURL + "/ws/chat/" + room

	sender, err := client.New(ctx, url, userA)
	if err != nil {
		return fmt.Errorf("connect sender: %w", err)
	}
	defer sender.Close()
	collector.AddConnect(sender.GetMetrics().ConnectLatency)

	receiver, err := client.New(ctx, url, userB)
	if err != nil {
		return fmt.Errorf("connect receiver: %w", err)
	}
	defer receiver.Close()
	collector.AddConnect(receiver.GetMetrics().ConnectLatency)

	var (
		mu        sync.Mutex
		sentAt    = make(map[string]time.Time)
		delivered = make(chan struct{}, messages)
	)
	receiver.On(client.TypeChatMessage, func(raw json.RawMessage) {
		var msg struct {
			SenderID int64  `json:"sender_id"`
			Content  string `json:"content"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.SenderID != userA {
			return
		}
		mu.Lock()
		start, ok := sentAt[msg.Content]
		delete(sentAt, msg.Content)
		mu.Unlock()
		if ok {
			collector.AddMsgLatency(time.Since(start))
			delivered <- struct{}{}
		}
	})

	for n := 0; n < messages; n++ {
		text := fmt.Sprintf("load-%d-%d-%d", userA, userB, n)
		mu.Lock()
		sentAt[text] = time.Now()
		mu.Unlock()
		if err := sender.SendChat(userB, text); err != nil {
			return fmt.Errorf("send %d: %w", n, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	// The channel is buffered for every message, so deliveries that raced
	// ahead of the send loop are not lost.
	for seen := 0; seen < messages; seen++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out with %d/%d delivered", seen, messages)
		case <-delivered:
		}
	}
	return nil
}
