package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/pkg/utils"
)

// DefaultHeartbeat is the keep-alive interval of an idle stream.
const DefaultHeartbeat = 15 * time.Second

// Subscriber is the read side of the event hub.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// Snapshot returns the payload of the initial state event.
type Snapshot func(ctx context.Context) any

// Handler streams hub events as Server-Sent Events. Each SSE event is
// named after the event type and carries the whole event as JSON.
type Handler struct {
	hub       Subscriber
	snapshot  Snapshot
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a stream handler. snapshot may be nil.
func New(hub Subscriber, snapshot Snapshot, heartbeat time.Duration, logger *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, snapshot: snapshot, heartbeat: heartbeat, logger: logger}
}

// ServeHTTP holds the stream open until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Stream(r.Context(), w); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("event stream closed", zap.Error(err))
	}
}

// Stream writes events to w until ctx ends or a write fails.
func (h *Handler) Stream(ctx context.Context, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	sub, cancel := h.hub.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if h.snapshot != nil {
		initial := events.Event{Type: events.TypeState, Data: h.snapshot(ctx), Timestamp: time.Now().UnixMilli()}
		if err := utils.SendSSEEvent(w, flusher, initial.Type, initial); err != nil {
			return err
		}
	} else {
		flusher.Flush()
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub:
			if !ok {
				return nil
			}
			if err := utils.SendSSEEvent(w, flusher, evt.Type, evt); err != nil {
				return err
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return err
			}
		}
	}
}
