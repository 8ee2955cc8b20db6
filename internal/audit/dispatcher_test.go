package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Type: Logout})
	d.Close()
	if d.Stats() != (Stats{}) {
		t.Fatal("nil dispatcher must report zero stats")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: LoginFailure})
	}
	close(sink.release)
	d.Close()

	st := d.Stats()
	if st.Dropped == 0 {
		t.Fatal("expected drops with a blocked sink and a one-slot buffer")
	}
	if got := st.Dropped + st.Delivered; got != 10 {
		t.Fatalf("expected every event to be delivered or dropped, got %d", got)
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Type: LoginSuccess})
	}
	d.Close()
	if len(sink.Events()) != 5 {
		t.Fatalf("expected 5 delivered events, got %d", len(sink.Events()))
	}
}

func TestDispatcherNeverDropsReuseEvidence(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 4; i++ {
		d.Emit(context.Background(), Event{Type: LoginFailure})
	}

	sent := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{Type: RefreshReuseDetected, SessionID: "fam-1"})
		close(sent)
	}()
	close(sink.release)
	<-sent
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, e := range sink.got {
		if e.Type == RefreshReuseDetected && e.SessionID == "fam-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("reuse detection event was dropped under backpressure")
	}
}

type panickySink struct{ calls atomic.Int32 }

func (s *panickySink) Emit(context.Context, Event) {
	if s.calls.Add(1) == 1 {
		panic("sink exploded")
	}
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	sink := &panickySink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{Type: LoginSuccess})
	d.Emit(context.Background(), Event{Type: LoginSuccess})
	d.Close()

	st := d.Stats()
	if st.SinkPanics != 1 || st.Delivered != 1 {
		t.Fatalf("expected one panic and one delivery, got %+v", st)
	}
}

func TestDispatcherCountsEventsAfterClose(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, NoOpSink{})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Type: Logout})
	if got := d.Stats().Dropped; got != 1 {
		t.Fatalf("expected late event counted as dropped, got %d", got)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), Event{Type: RefreshReuseDetected, SessionID: "s1", Code: "REFRESH_REUSE_DETECTED"})

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "refresh_reuse_detected" || decoded["session_id"] != "s1" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	NewSlogSink(logger).Emit(context.Background(), Event{Type: Logout, UserID: "u1", Success: true})
	if !strings.Contains(buf.String(), `"type":"logout"`) || !strings.Contains(buf.String(), `"user_id":"u1"`) {
		t.Fatalf("unexpected log line: %s", buf.String())
	}
}
