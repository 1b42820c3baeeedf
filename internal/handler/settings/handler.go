package settings

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
	chatService "github.com/zhouzirui/tutibot/backend/internal/service/chat"
	"github.com/zhouzirui/tutibot/backend/pkg/utils"
)

// Handler 主题目录与机器人设置的HTTP处理器
type Handler struct {
	themes  theme.Store
	chatSvc *chatService.Service
}

// New 创建设置处理器
func New(themes theme.Store, chatSvc *chatService.Service) *Handler {
	return &Handler{themes: themes, chatSvc: chatSvc}
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/themes", h.handleListThemes)
	r.Put("/settings", h.handleUpdateSettings)
}

func (h *Handler) handleListThemes(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.themes.List())
}

// updateSettingsRequest 未提供的字段保持不变
type updateSettingsRequest struct {
	BotName   *string `json:"botName"`
	BotAvatar *string `json:"botAvatar"`
	ThemeID   *string `json:"themeId"`
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload updateSettingsRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if payload.ThemeID != nil {
		if err := h.chatSvc.SetTheme(ctx, *payload.ThemeID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, chatService.ErrThemeNotFound) {
				status = http.StatusBadRequest
			}
			utils.RespondError(w, status, err.Error())
			return
		}
	}
	if payload.BotName != nil {
		h.chatSvc.SetBotName(ctx, *payload.BotName)
	}
	if payload.BotAvatar != nil {
		h.chatSvc.SetBotAvatar(ctx, *payload.BotAvatar)
	}

	state := h.chatSvc.State(ctx)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"botName":   state.BotName,
		"botAvatar": state.BotAvatar,
		"themeId":   state.ThemeID,
		"theme":     h.chatSvc.Theme(ctx),
	})
}
