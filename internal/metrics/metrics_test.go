package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/chats/{chatID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/chats/abc", nil))

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/chats/{chatID}", "404"))
	assert.Equal(t, 1.0, got)
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.ObserveMessage("user")
	m.ObserveMessage("bot")
	m.ObserveMessage("bot")
	m.SetChats(3)
	m.ObserveStorageWrite(nil)
	m.ObserveStorageWrite(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("bot")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Chats))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageWrites.WithLabelValues("error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.IncRecordings()

	resp := httptest.NewRecorder()
	m.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "tutibot_recordings_total 1"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveMessage("user")
	m.SetChats(1)
	m.SetPendingReplies(1)
	m.ObserveStorageWrite(nil)
	m.IncRecordings()
}
