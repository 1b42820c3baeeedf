package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/handler/chat"
	"github.com/zhouzirui/tutibot/backend/internal/handler/input"
	"github.com/zhouzirui/tutibot/backend/internal/handler/settings"
	"github.com/zhouzirui/tutibot/backend/internal/handler/speech"
	"github.com/zhouzirui/tutibot/backend/internal/handler/stream"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/tutibot/backend/internal/middleware"
	themeModel "github.com/zhouzirui/tutibot/backend/internal/model/theme"
	chatService "github.com/zhouzirui/tutibot/backend/internal/service/chat"
	inputService "github.com/zhouzirui/tutibot/backend/internal/service/input"
	"github.com/zhouzirui/tutibot/backend/internal/service/responder"
	speechService "github.com/zhouzirui/tutibot/backend/internal/service/speech"
	"github.com/zhouzirui/tutibot/backend/pkg/utils"
)

// Deps 路由装配处理器所需的依赖
type Deps struct {
	Themes      themeModel.Store
	Chats       *chatService.Service
	Responder   *responder.Responder
	Composer    *inputService.Composer
	Voice       *speechService.Voice
	Relay       *speechService.Relay
	Hub         *events.Hub
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	RateLimiter *middlewarePkg.RateLimiter
	CORSOrigins []string
	UploadLimit int64
}

// liveState joins the transient indicators owned by separate services.
type liveState struct {
	responder *responder.Responder
	voice     *speechService.Voice
	composer  *inputService.Composer
}

func (l liveState) Typing(chatID string) bool { return l.responder.Typing(chatID) }
func (l liveState) Recording() bool { return l.voice.Recording() }
func (l liveState) Draft() string { return l.composer.Draft() }

// NewRouter 将HTTP路由绑定到核心服务
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	chatHandler := chat.New(d.Chats, liveState{responder: d.Responder, voice: d.Voice, composer: d.Composer})
	settingsHandler := settings.New(d.Themes, d.Chats)
	inputHandler := input.New(d.Composer, d.UploadLimit, logger)
	speechHandler := speech.New(d.Voice, d.Relay, d.Hub, d.Hub, d.Metrics, logger)
	streamHandler := stream.New(d.Hub, func(ctx context.Context) any { return d.Chats.Overview(ctx) }, 0, logger)

	r.Route("/api", func(api chi.Router) {
		if d.RateLimiter != nil {
			api.Use(d.RateLimiter.Handler)
		}

		chatHandler.RegisterRoutes(api)
		settingsHandler.RegisterRoutes(api)
		inputHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
		api.Method(http.MethodGet, "/events", streamHandler)
	})

	return r
}
