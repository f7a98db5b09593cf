package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is the structured form of one log line as served to live
// followers and the on-disk journal.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	RecordID  int64             `json:"record_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   []DetailField     `json:"details,omitempty"`
}

// DetailField mirrors the console handler's info bullet lines.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogEventSink receives a copy of every published event.
type LogEventSink interface {
	Append(LogEvent)
}

// StreamHub keeps the most recent log events in a fixed-size ring and wakes
// blocked readers whenever something new arrives. Sequence numbers are
// monotonically increasing and survive ring eviction, so readers can detect
// when their cursor fell out of the buffer.
type StreamHub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ring    []LogEvent
	head    int // oldest buffered event
	count   int
	nextSeq uint64
	sinks   []LogEventSink
}

// NewStreamHub builds a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &StreamHub{ring: make([]LogEvent, capacity)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddSink registers an extra consumer for every future event.
func (h *StreamHub) AddSink(sink LogEventSink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish assigns the next sequence number and stores the event, evicting
// the oldest entry when the ring is full. Sinks run outside the lock.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if h.count == len(h.ring) {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	} else {
		h.ring[(h.head+h.count)%len(h.ring)] = evt
		h.count++
	}
	sinks := append([]LogEventSink(nil), h.sinks...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
}

// Fetch returns up to limit events with sequence greater than since, plus
// the cursor for the next call. With wait set it blocks until an event
// arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	limit = h.clampLimit(limit)

	// cond.Wait cannot observe ctx directly; a helper goroutine turns
	// cancellation into a broadcast.
	unblock := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-unblock:
			}
		}()
	}
	defer close(unblock)

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		events := h.pageLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, h.nextSeq, ctxErr(ctx)
		}
		if err := ctxErr(ctx); err != nil {
			return nil, h.nextSeq, err
		}
		h.cond.Wait()
		if err := ctxErr(ctx); err != nil {
			return nil, h.nextSeq, err
		}
	}
}

// Tail returns the newest limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	limit = h.clampLimit(limit)

	h.mu.Lock()
	defer h.mu.Unlock()
	n := min(limit, h.count)
	if n == 0 {
		return nil, h.nextSeq
	}
	out := make([]LogEvent, 0, n)
	for i := h.count - n; i < h.count; i++ {
		out = append(out, h.ring[(h.head+i)%len(h.ring)])
	}
	return out, h.nextSeq
}

// FirstSequence reports the oldest sequence still buffered, or the current
// cursor when the ring is empty.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return h.nextSeq
	}
	return h.ring[h.head].Sequence
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > len(h.ring) {
		return len(h.ring)
	}
	return limit
}

func (h *StreamHub) pageLocked(since uint64, limit int) []LogEvent {
	var out []LogEvent
	for i := 0; i < h.count && len(out) < limit; i++ {
		evt := h.ring[(h.head+i)%len(h.ring)]
		if evt.Sequence <= since {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// streamHandler publishes a structured copy of each record to the hub before
// passing it to the wrapped handler. Attrs bound via WithAttrs are carried
// along so per-download loggers keep their identity in the stream.
type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	bound []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(h.buildEvent(record))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.bound)+len(attrs))
	bound = append(bound, h.bound...)
	bound = append(bound, attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, bound: bound}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, bound: h.bound}
}

// buildEvent folds bound attrs first and call-site attrs second, so the
// call site wins when both carry the same key.
func (h *streamHandler) buildEvent(record slog.Record) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
		Fields:    make(map[string]string),
	}

	absorb := func(attr slog.Attr) {
		key := strings.TrimSpace(attr.Key)
		switch key {
		case "":
		case FieldRecordID:
			if attr.Value.Resolve().Kind() == slog.KindInt64 {
				event.RecordID = attr.Value.Int64()
			}
		case FieldStage:
			event.Stage = attrString(attr.Value)
		case FieldRequestID:
			event.RequestID = attrString(attr.Value)
		case FieldComponent:
			event.Component = attrString(attr.Value)
		default:
			event.Fields[key] = attrString(attr.Value)
		}
	}

	for _, attr := range h.bound {
		absorb(attr)
	}
	var callAttrs []pair
	record.Attrs(func(attr slog.Attr) bool {
		absorb(attr)
		if key := strings.TrimSpace(attr.Key); key != "" {
			callAttrs = append(callAttrs, pair{key: key, value: attr.Value})
		}
		return true
	})

	if info, _ := selectInfoFields(callAttrs, infoAttrLimit, false); len(info) > 0 {
		event.Details = make([]DetailField, 0, len(info))
		for _, field := range info {
			event.Details = append(event.Details, DetailField{Label: field.label, Value: field.value})
		}
	}
	return event
}
