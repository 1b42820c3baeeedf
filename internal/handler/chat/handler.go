package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
	chatService "github.com/zhouzirui/tutibot/backend/internal/service/chat"
	"github.com/zhouzirui/tutibot/backend/pkg/utils"
)

// Live 提供不写入存储记录的实时状态（输入中、录音中、草稿）
type Live interface {
	Typing(chatID string) bool
	Recording() bool
	Draft() string
}

// Handler 聊天列表与会话状态的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	live    Live
}

// New 创建聊天处理器，live 可以为 nil
func New(chatSvc *chatService.Service, live Live) *Handler {
	return &Handler{chatSvc: chatSvc, live: live}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Route("/chats", func(cr chi.Router) {
		cr.Get("/", h.handleListChats)
		cr.Post("/", h.handleCreateChat)
		cr.Post("/active/restart", h.handleRestartChat)
		cr.Get("/{chatID}", h.handleGetChat)
		cr.Delete("/{chatID}", h.handleDeleteChat)
		cr.Post("/{chatID}/activate", h.handleActivateChat)
	})
}

type stateResponse struct {
	chat.State
	Theme     theme.Theme `json:"theme"`
	Typing    bool        `json:"typing"`
	Recording bool        `json:"recording"`
	Draft     string      `json:"draft"`
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := stateResponse{State: h.chatSvc.State(ctx), Theme: h.chatSvc.Theme(ctx)}
	if h.live != nil {
		resp.Typing = h.live.Typing(resp.ActiveChatID)
		resp.Recording = h.live.Recording()
		resp.Draft = h.live.Draft()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"chats":         h.chatSvc.Chats(r.Context()),
		"currentChatId": h.chatSvc.ActiveChatID(r.Context()),
	})
}

func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	created, err := h.chatSvc.CreateChat(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, err := h.chatSvc.Chat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteChat(r.Context(), chi.URLParam(r, "chatID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActivateChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if err := h.chatSvc.SwitchChat(r.Context(), chatID); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"currentChatId": chatID})
}

func (h *Handler) handleRestartChat(w http.ResponseWriter, r *http.Request) {
	restarted, err := h.chatSvc.RestartChat(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, restarted)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrChatNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrLastChat):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
