package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/tutibot/backend/internal/events"
)

type sseEvent struct {
	name string
	data events.Event
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var evt sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if evt.name != "" {
				return evt
			}
		case strings.HasPrefix(line, "event: "):
			evt.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt.data); err != nil {
				t.Fatalf("decode data: %v", err)
			}
		}
	}
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	hub := events.NewHub(8)
	snapshot := func(context.Context) any { return map[string]string{"currentChatId": "1"} }
	server := httptest.NewServer(New(hub, snapshot, time.Hour, nil))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if first.name != events.TypeState {
		t.Fatalf("expected initial state event, got %q", first.name)
	}

	hub.Publish(events.Event{Type: events.TypeMessage, ChatID: "1", Data: map[string]string{"text": "hi"}})

	second := readEvent(t, reader)
	if second.name != events.TypeMessage || second.data.ChatID != "1" {
		t.Fatalf("unexpected event: %+v", second)
	}
	if second.data.Timestamp == 0 {
		t.Fatal("expected hub to stamp the event")
	}
}

func TestStreamStopsWhenClientLeaves(t *testing.T) {
	hub := events.NewHub(8)
	handler := New(hub, nil, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
	if hub.Subscribers() != 0 {
		t.Fatal("expected subscription to be released")
	}
}

func TestStreamHeartbeat(t *testing.T) {
	hub := events.NewHub(8)
	server := httptest.NewServer(New(hub, nil, 20*time.Millisecond, nil))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != ": heartbeat\n" {
		t.Fatalf("expected heartbeat comment, got %q", line)
	}
}
