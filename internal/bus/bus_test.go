package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"nanobot/internal/domain"
)

func testBusLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(10, testBusLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{Channel: "zalo", ChatID: "c1", Content: "hi"})

	select {
	case msg := <-b.Subscribe():
		if msg.ChatID != "c1" || msg.Content != "hi" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestOutboundHandler(t *testing.T) {
	b := New(10, testBusLogger())
	defer b.Close()

	got := make(chan domain.OutboundMessage, 1)
	b.OnOutbound("zalo", func(msg domain.OutboundMessage) {
		got <- msg
	})

	b.SendOutbound(domain.OutboundMessage{Channel: "zalo", ChatID: "c1", Content: "reply"})

	select {
	case msg := <-got:
		if msg.Content != "reply" {
			t.Errorf("expected reply, got %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestOutboundNoHandler(t *testing.T) {
	b := New(10, testBusLogger())
	defer b.Close()

	// Must not panic when no handler is registered.
	b.SendOutbound(domain.OutboundMessage{Channel: "unknown", ChatID: "c1"})
}

func TestPublishAfterClose(t *testing.T) {
	b := New(10, testBusLogger())
	b.Close()

	// Dropped with a warning, no panic on the closed channel.
	b.Publish(domain.InboundMessage{Channel: "zalo", ChatID: "c1"})
}

func TestCloseIdempotent(t *testing.T) {
	b := New(10, testBusLogger())
	b.Close()
	b.Close()
}
