package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func discardBase(opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(io.Discard, opts)
}

func TestStreamHandlerCarriesBoundAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newStreamHandler(discardBase(nil), hub)).
		With(slog.Int64("record_id", 42))

	logger.Info("announce ok", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("Tail returned %d events, want 1", len(events))
	}
	if events[0].RecordID != 42 {
		t.Fatalf("bound record_id lost: got %d", events[0].RecordID)
	}
	if events[0].Message != "announce ok" {
		t.Fatalf("message = %q", events[0].Message)
	}
}

func TestStreamHandlerLayeredWith(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newStreamHandler(discardBase(nil), hub)).
		With(slog.String("component", "poller")).
		With(slog.Int64("record_id", 99)).
		With(slog.String("stage", "transfer"))

	logger.Info("transfer progress")

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("Tail returned %d events, want 1", len(events))
	}
	evt := events[0]
	if evt.RecordID != 99 || evt.Component != "poller" || evt.Stage != "transfer" {
		t.Fatalf("layered attrs lost: %+v", evt)
	}
}

func TestStreamHandlerCallSiteWins(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newStreamHandler(discardBase(nil), hub)).
		With(slog.String("stage", "original"))

	logger.Info("message", slog.String("stage", "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("Tail returned %d events, want 1", len(events))
	}
	if events[0].Stage != "overridden" {
		t.Fatalf("stage = %q, want call-site value", events[0].Stage)
	}
}

func TestStreamHandlerNilHubPassesThrough(t *testing.T) {
	base := discardBase(nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Fatal("nil hub should return the wrapped handler unchanged")
	}
}

func TestStreamHandlerDelegatesEnabled(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(discardBase(&slog.HandlerOptions{Level: slog.LevelWarn}), hub)

	ctx := context.Background()
	if handler.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be gated by the wrapped handler's warn level")
	}
	if !handler.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn should pass the wrapped handler's level")
	}
}

func TestStreamHubEvictsAndKeepsSequences(t *testing.T) {
	hub := NewStreamHub(4)
	for i := 0; i < 6; i++ {
		hub.Publish(LogEvent{Message: "event"})
	}

	events, next, err := hub.Fetch(context.Background(), 4, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if next != 6 {
		t.Fatalf("next cursor = %d, want 6", next)
	}
	if len(events) != 2 {
		t.Fatalf("Fetch returned %d events past seq 4, want 2", len(events))
	}
	if events[0].Sequence != 5 || events[1].Sequence != 6 {
		t.Fatalf("sequences = %d, %d; want 5, 6", events[0].Sequence, events[1].Sequence)
	}
	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("FirstSequence = %d after eviction, want 3", first)
	}
}

func TestStreamHubTailReturnsNewest(t *testing.T) {
	hub := NewStreamHub(8)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "event"})
	}
	events, cursor := hub.Tail(2)
	if cursor != 5 {
		t.Fatalf("cursor = %d, want 5", cursor)
	}
	if len(events) != 2 || events[0].Sequence != 4 || events[1].Sequence != 5 {
		t.Fatalf("unexpected tail window: %+v", events)
	}
}
