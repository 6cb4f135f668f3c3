package natsutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestCarrierRoundTrip(t *testing.T) {
	msg := &nats.Msg{Subject: "test"}
	c := (*natsHeaderCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Fatalf("empty carrier returned %q", got)
	}
	if keys := c.Keys(); keys != nil {
		t.Fatalf("empty carrier keys = %v", keys)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Get = %q", got)
	}
	if keys := c.Keys(); len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
}

// Integration tests below require a running NATS server.

func natsConn(t *testing.T) *nats.Conn {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Skipf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

type rebuildEvent struct {
	Docs int    `json:"docs"`
	Path string `json:"path"`
}

func TestPublishSubscribe(t *testing.T) {
	nc := natsConn(t)

	received := make(chan rebuildEvent, 1)
	sub, err := Subscribe(nc, "test.kb.rebuilt", func(_ context.Context, ev rebuildEvent) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.kb.rebuilt", rebuildEvent{Docs: 12, Path: "/tmp/idx"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-received:
		if ev.Docs != 12 || ev.Path != "/tmp/idx" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	nc := natsConn(t)

	received := make(chan rebuildEvent, 1)
	sub, err := Subscribe(nc, "test.kb.malformed", func(_ context.Context, ev rebuildEvent) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.kb.malformed", []byte("not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-received:
		t.Fatalf("malformed message delivered: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
