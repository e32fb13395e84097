package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("session.", 10)
	defer sub.Close()

	b.Publish(Event{Kind: "session.status_changed", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-sub.Events():
		if evt.Kind != "session.status_changed" {
			t.Errorf("got kind %q, want session.status_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	sub := b.Subscribe("socket.", 10)
	defer sub.Close()

	b.Publish(Event{Kind: "session.status_changed"})
	b.Publish(Event{Kind: "socket.new_message"})

	select {
	case evt := <-sub.Events():
		if evt.Kind != "socket.new_message" {
			t.Errorf("got kind %q, want socket.new_message", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the session event was not delivered.
	select {
	case evt := <-sub.Events():
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClose(t *testing.T) {
	b := New()
	sub := b.Subscribe("session.", 10)
	sub.Close()
	sub.Close() // idempotent

	b.Publish(Event{Kind: "session.status_changed"})

	select {
	case evt := <-sub.Events():
		t.Errorf("received event after close: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe("test.", 1)
	defer sub.Close()

	b.Publish(Event{Kind: "test.one"})
	// Dropped: buffer is full and delivery never blocks.
	b.Publish(Event{Kind: "test.two"})

	evt := <-sub.Events()
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
