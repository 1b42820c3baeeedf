package input

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	inputService "github.com/zhouzirui/tutibot/backend/internal/service/input"
	"github.com/zhouzirui/tutibot/backend/pkg/utils"
)

// DefaultUploadLimit 未配置时的图片上传大小上限
const DefaultUploadLimit = 10 << 20

// Handler 文本输入、草稿与图片上传的HTTP处理器
type Handler struct {
	composer    *inputService.Composer
	uploadLimit int64
	logger      *zap.Logger
}

// New 创建输入处理器
func New(composer *inputService.Composer, uploadLimit int64, logger *zap.Logger) *Handler {
	if uploadLimit <= 0 {
		uploadLimit = DefaultUploadLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{composer: composer, uploadLimit: uploadLimit, logger: logger}
}

// RegisterRoutes 注册输入相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Put("/draft", h.handleSetDraft)
	r.Post("/messages", h.handleSendMessage)
	r.Post("/messages/image", h.handleSendImage)
}

type draftPayload struct {
	Text string `json:"text"`
}

func (h *Handler) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var payload draftPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.composer.SetDraft(payload.Text)
	utils.RespondJSON(w, http.StatusOK, draftPayload{Text: h.composer.Draft()})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text *string `json:"text"`
	}
	// 空请求体表示发送当前草稿
	if err := json.NewDecoder(io.LimitReader(r.Body, utils.MaxJSONBody)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		sent inputService.Sent
		err  error
	)
	if payload.Text == nil {
		sent, err = h.composer.SendDraft(r.Context())
	} else {
		sent, err = h.composer.SendText(r.Context(), *payload.Text)
	}
	h.respondSent(w, sent, err)
}

func (h *Handler) handleSendImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	if err := r.ParseMultipartForm(h.uploadLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "image is too large")
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// 未选择文件不算错误
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer file.Close()

	sent, err := h.composer.SendImage(r.Context(), file, header.Header.Get("Content-Type"))
	h.respondSent(w, sent, err)
}

func (h *Handler) respondSent(w http.ResponseWriter, sent inputService.Sent, err error) {
	switch {
	case errors.Is(err, inputService.ErrEmptyText), errors.Is(err, inputService.ErrNoFile):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		h.logger.Error("failed to submit message", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusAccepted, map[string]any{
			"chatId":  sent.ChatID,
			"message": sent.Message,
		})
	}
}
