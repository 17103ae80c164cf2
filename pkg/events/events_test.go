package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()

	broker.Publish(&Event{Type: EventTaskCreated, TaskID: "t1"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventTaskCreated, event.Type)
			assert.Equal(t, "t1", event.TaskID)
			assert.False(t, event.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
}

// TestBrokerSlowSubscriberSkipped checks a full subscriber buffer never
// blocks delivery to others
func TestBrokerSlowSubscriberSkipped(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	slow := broker.Subscribe()
	fast := broker.Subscribe()

	// Overflow the slow subscriber's buffer without draining it
	for i := 0; i < 60; i++ {
		broker.Publish(&Event{Type: EventRunStarted, TaskID: "t1"})
	}

	// The fast subscriber still sees events
	received := 0
	timeout := time.After(2 * time.Second)
	for received < 50 {
		select {
		case <-fast:
			received++
		case <-timeout:
			t.Fatalf("fast subscriber starved after %d events", received)
		}
	}

	require.NotNil(t, slow)
}
