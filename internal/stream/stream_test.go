package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/duelboard/duelboard/internal/match"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	h := NewHub()
	c := NewClient()
	h.Register(c)
	if h.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Count())
	}

	h.Broadcast([]byte("frame"))
	select {
	case msg := <-c.Send():
		if string(msg) != "frame" {
			t.Fatalf("got %q", msg)
		}
	default:
		t.Fatalf("expected a queued frame")
	}

	h.Unregister(c)
	if h.Count() != 0 {
		t.Fatalf("count after unregister = %d, want 0", h.Count())
	}
	// Push after close must not panic or block.
	c.Push([]byte("late"))
	if _, ok := <-c.Send(); ok {
		t.Fatalf("expected closed send channel")
	}
}

func TestClient_DropsWhenFull(t *testing.T) {
	c := NewClient()
	for i := 0; i < 200; i++ {
		c.Push([]byte("x"))
	}
	if n := len(c.send); n != cap(c.send) {
		t.Fatalf("queued = %d, want buffer cap %d", n, cap(c.send))
	}
}

func TestPublisherToHub(t *testing.T) {
	rdb := newTestRedis(t)
	hub := NewHub()
	client := NewClient()
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Listen(ctx, rdb)
	}()
	// Give the subscriber a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	pub := NewPublisher(rdb)
	sess := match.NewSession()
	sess.WhiteID = "alice"
	pub.PublishSession(ctx, sess)
	pub.PublishBalance(ctx, "alice", 250)

	var events []Event
	timeout := time.After(2 * time.Second)
	for len(events) < 2 {
		select {
		case raw := <-client.Send():
			var ev Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(events))
		}
	}

	if events[0].Type != EventSession || events[0].Session == nil || events[0].Session.WhiteID != "alice" {
		t.Fatalf("unexpected session event: %+v", events[0])
	}
	if events[1].Type != EventBalance || events[1].PlayerID != "alice" || events[1].Balance != 250 {
		t.Fatalf("unexpected balance event: %+v", events[1])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop")
	}
}
