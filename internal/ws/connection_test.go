package ws

import (
	"sync"
	"testing"
	"time"
)

func TestTouchUpdatesLastActive(t *testing.T) {
	c := &Connection{ID: "c1"}

	if !c.LastActive().Equal(time.Unix(0, 0)) {
		t.Fatalf("untouched connection LastActive = %v, want zero instant", c.LastActive())
	}

	before := time.Now()
	c.Touch()
	after := time.Now()

	got := c.LastActive()
	if got.Before(before) || got.After(after) {
		t.Fatalf("LastActive = %v, want within [%v, %v]", got, before, after)
	}
}

// Read workers touch the connection on every frame while the heartbeat
// goroutine reads the activity timestamp concurrently; the race detector
// must stay quiet and every observed value must be a real timestamp from
// the test window.
func TestLastActiveConcurrentReadsAndWrites(t *testing.T) {
	c := &Connection{ID: "c1"}
	start := time.Now()
	c.Touch()

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					c.Touch()
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		got := c.LastActive()
		if got.Before(start) || got.After(time.Now()) {
			t.Errorf("LastActive = %v, outside the test window starting %v", got, start)
			break
		}
	}
	close(done)
	wg.Wait()

	if c.LastActive().Before(start) {
		t.Fatalf("final LastActive %v precedes test start %v", c.LastActive(), start)
	}
}
