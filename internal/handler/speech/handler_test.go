package speech

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	speechsvc "github.com/zhouzirui/tutibot/backend/internal/service/speech"
)

type transcripts struct {
	mu  sync.Mutex
	got []string
}

func (s *transcripts) AppendTranscript(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
}

func (s *transcripts) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

type fixture struct {
	server *httptest.Server
	hub    *events.Hub
	voice  *speechsvc.Voice
	sink   *transcripts
}

func setup(t *testing.T, enabled bool) fixture {
	t.Helper()
	hub := events.NewHub(32)
	relay := speechsvc.NewRelay(enabled, nil)
	sink := &transcripts{}
	voice := speechsvc.NewVoice(relay.Capability, relay, sink, "", hub, nil, nil)
	t.Cleanup(voice.Close)

	r := chi.NewRouter()
	New(voice, relay, hub, hub, metrics.New(), nil).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return fixture{server: server, hub: hub, voice: voice, sink: sink}
}

func (f fixture) toggle(t *testing.T) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/speech/toggle", "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/speech/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil skips frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == frameType {
			return f
		}
	}
}

func TestToggleUnsupportedPublishesNotification(t *testing.T) {
	f := setup(t, true)
	sub, cancel := f.hub.Subscribe()
	defer cancel()

	resp := f.toggle(t)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	select {
	case evt := <-sub:
		assert.Equal(t, events.TypeNotification, evt.Type)
		assert.Equal(t, map[string]string{"message": speechsvc.UnsupportedNotice}, evt.Data)
	case <-time.After(time.Second):
		t.Fatal("expected notification event")
	}
	assert.False(t, f.voice.Recording())
}

func TestWebSocketRelaysRecognition(t *testing.T) {
	f := setup(t, true)
	conn := f.dial(t)
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "hello", "data": map[string]bool{"supported": true}}))
	capability := readUntil(t, conn, "capability")
	assert.JSONEq(t, `{"supported":true}`, string(capability.Data))

	resp := f.toggle(t)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	start := readUntil(t, conn, speechsvc.CommandStart)
	assert.JSONEq(t, `{"lang":"ru-RU","continuous":false,"interimResults":false}`, string(start.Data))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "speech.result",
		"data": map[string]any{"transcript": "hello bot", "isFinal": true},
	}))
	readUntil(t, conn, speechsvc.CommandStop)

	assert.Equal(t, []string{"hello bot"}, f.sink.all())
	assert.False(t, f.voice.Recording())
}

func TestWebSocketDisabledSpeech(t *testing.T) {
	f := setup(t, false)
	conn := f.dial(t)

	connected := readUntil(t, conn, "connected")
	assert.Contains(t, string(connected.Data), `"supported":false`)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "hello", "data": map[string]bool{"supported": true}}))
	readUntil(t, conn, "capability")
	assert.Equal(t, http.StatusNotImplemented, f.toggle(t).StatusCode)
}

func TestWebSocketForwardsHubEvents(t *testing.T) {
	f := setup(t, true)
	conn := f.dial(t)
	readUntil(t, conn, "connected")

	f.hub.Publish(events.Event{Type: events.TypeTyping, ChatID: "1", Data: map[string]bool{"typing": true}})

	evt := readUntil(t, conn, events.TypeTyping)
	assert.JSONEq(t, `{"typing":true}`, string(evt.Data))
}

func TestWebSocketRejectsUnknownFrames(t *testing.T) {
	f := setup(t, true)
	conn := f.dial(t)
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "audio"}))
	errFrame := readUntil(t, conn, "error")
	assert.Contains(t, string(errFrame.Data), "unsupported message type: audio")
}
