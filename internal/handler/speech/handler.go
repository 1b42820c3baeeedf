package speech

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	speechsvc "github.com/zhouzirui/tutibot/backend/internal/service/speech"
	"github.com/zhouzirui/tutibot/backend/pkg/utils"
)

// Subscriber 事件中心的订阅端
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// Handler 语音开关与实时WebSocket的HTTP处理器
type Handler struct {
	voice    *speechsvc.Voice
	relay    *speechsvc.Relay
	hub      Subscriber
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建语音处理器
func New(voice *speechsvc.Voice, relay *speechsvc.Relay, hub Subscriber, publisher events.Publisher, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		voice:   voice,
		relay:   relay,
		hub:     hub,
		events:  publisher,
		metrics: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/toggle", h.handleToggle)
		speechRouter.Get("/ws", h.handleWebSocket)
	})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	recording, err := h.voice.Toggle(r.Context())
	switch {
	case errors.Is(err, speechsvc.ErrUnsupported):
		h.events.Publish(events.Event{
			Type: events.TypeNotification,
			Data: map[string]string{"message": speechsvc.UnsupportedNotice},
		})
		utils.RespondError(w, http.StatusNotImplemented, speechsvc.UnsupportedNotice)
	case err != nil:
		h.logger.Warn("voice toggle failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	default:
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"recording": recording})
	}
}
