package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
	chatservice "github.com/zhouzirui/tutibot/backend/internal/service/chat"
	"github.com/zhouzirui/tutibot/backend/internal/storage"
)

type staticLive struct{}

func (staticLive) Typing(chatID string) bool { return chatID == "1" }
func (staticLive) Recording() bool { return true }
func (staticLive) Draft() string { return "half typed" }

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(storage.NewMemory(), theme.NewMemoryStore(theme.Seed()))
	chatSvc.Load(context.Background())
	handler := New(chatSvc, staticLive{})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStateIncludesLiveIndicators(t *testing.T) {
	r, _ := setupRouter()

	resp := do(r, http.MethodGet, "/state")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Chats       []chat.Chat `json:"chats"`
		CurrentChat string      `json:"currentChatId"`
		ThemeID     string      `json:"themeId"`
		BotName     string      `json:"botName"`
		Theme       theme.Theme `json:"theme"`
		Typing      bool        `json:"typing"`
		Recording   bool        `json:"recording"`
		Draft       string      `json:"draft"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Chats) != 1 || body.CurrentChat != "1" {
		t.Fatalf("unexpected default session: %+v", body)
	}
	if body.ThemeID != "purple" || body.Theme.ID != "purple" || body.BotName != "TuTiBot" {
		t.Fatalf("unexpected settings: %+v", body)
	}
	if !body.Typing || !body.Recording || body.Draft != "half typed" {
		t.Fatalf("live indicators missing: %+v", body)
	}
}

func TestCreateAndListChats(t *testing.T) {
	r, _ := setupRouter()

	resp := do(r, http.MethodPost, "/chats")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var created chat.Chat
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Name != "Chat 2" || len(created.Messages) != 1 {
		t.Fatalf("unexpected chat: %+v", created)
	}

	resp = do(r, http.MethodGet, "/chats")
	var list struct {
		Chats         []chat.Summary `json:"chats"`
		CurrentChatID string         `json:"currentChatId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Chats) != 2 || list.CurrentChatID != created.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestGetChat(t *testing.T) {
	r, _ := setupRouter()

	if resp := do(r, http.MethodGet, "/chats/1"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, "/chats/missing"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestDeleteLastChatConflicts(t *testing.T) {
	r, chatSvc := setupRouter()

	resp := do(r, http.MethodDelete, "/chats/1")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if n := len(chatSvc.Chats(context.Background())); n != 1 {
		t.Fatalf("expected chat to survive, got %d chats", n)
	}
}

func TestDeleteChat(t *testing.T) {
	r, chatSvc := setupRouter()
	ctx := context.Background()
	second, err := chatSvc.CreateChat(ctx)
	if err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}

	if resp := do(r, http.MethodDelete, "/chats/unknown"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := do(r, http.MethodDelete, "/chats/"+second.ID); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if got := chatSvc.ActiveChatID(ctx); got != "1" {
		t.Fatalf("expected active chat 1, got %s", got)
	}
}

func TestActivateChat(t *testing.T) {
	r, chatSvc := setupRouter()
	ctx := context.Background()
	if _, err := chatSvc.CreateChat(ctx); err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}

	if resp := do(r, http.MethodPost, "/chats/1/activate"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := chatSvc.ActiveChatID(ctx); got != "1" {
		t.Fatalf("expected active chat 1, got %s", got)
	}
	if resp := do(r, http.MethodPost, "/chats/nope/activate"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRestartActiveChat(t *testing.T) {
	r, chatSvc := setupRouter()
	ctx := context.Background()
	if _, err := chatSvc.AppendActive(ctx, chat.NewUserMessage("hello", time.Now())); err != nil {
		t.Fatalf("AppendActive err: %v", err)
	}

	resp := do(r, http.MethodPost, "/chats/active/restart")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var restarted chat.Chat
	if err := json.NewDecoder(resp.Body).Decode(&restarted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if restarted.ID != "1" || len(restarted.Messages) != 1 {
		t.Fatalf("unexpected restarted chat: %+v", restarted)
	}
}
