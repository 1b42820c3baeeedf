package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
	"github.com/zhouzirui/tutibot/backend/internal/storage"
)

// DefaultStorageKey is the record key the widget has always used.
const DefaultStorageKey = "tutibot_data"

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrLastChat      = errors.New("cannot delete the only remaining chat")
	ErrThemeNotFound = errors.New("theme not found")
)

// ResetFunc is told when a chat's log is discarded, by deletion or restart.
type ResetFunc func(chatID string)

// Service owns the session state and mirrors it to storage after every
// committed mutation.
type Service struct {
	mu    sync.Mutex
	state chat.State

	store   storage.Storage
	key     string
	themes  theme.Store
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	onReset []ResetFunc
}

// Option customizes a Service.
type Option func(*Service)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.key = key
		}
	}
}

// WithPublisher sends state changes to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics records chat and storage metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service holding the default session. Call Load to
// rehydrate from storage.
func NewService(store storage.Storage, themes theme.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		key:    DefaultStorageKey,
		themes: themes,
		events: events.Discard,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = DefaultState(themes, s.now())
	return s
}

// OnReset registers fn to run when a chat is deleted or restarted. fn runs
// with the service lock held and must not call back into the Service.
func (s *Service) OnReset(fn ResetFunc) {
	s.mu.Lock()
	s.onReset = append(s.onReset, fn)
	s.mu.Unlock()
}

// Load replaces the in-memory state with the stored record. Any read or
// parse failure silently keeps the default session.
func (s *Service) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.loadLocked(ctx)
	s.metrics.SetChats(len(s.state.Chats))
}

func (s *Service) loadLocked(ctx context.Context) chat.State {
	raw, err := s.store.GetItem(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("no stored session, using defaults", zap.String("key", s.key))
		return DefaultState(s.themes, s.now())
	}
	if err != nil {
		s.logger.Warn("failed to read stored session, using defaults", zap.String("key", s.key), zap.Error(err))
		return DefaultState(s.themes, s.now())
	}

	state, err := DecodeRecord(raw, s.themes)
	if err != nil {
		s.logger.Warn("discarding unreadable session record", zap.String("key", s.key), zap.Error(err))
		return DefaultState(s.themes, s.now())
	}
	s.logger.Info("session restored", zap.Int("chats", len(state.Chats)), zap.String("activeChatId", state.ActiveChatID))
	return state
}

// State returns a deep copy of the whole session.
func (s *Service) State(_ context.Context) chat.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Chats returns the chat list projection in order.
func (s *Service) Chats(_ context.Context) []chat.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Summary, 0, len(s.state.Chats))
	for _, c := range s.state.Chats {
		out = append(out, c.Summarize())
	}
	return out
}

// Chat returns one chat by id.
func (s *Service) Chat(_ context.Context, chatID string) (chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.state.Find(chatID)
	if i < 0 {
		return chat.Chat{}, ErrChatNotFound
	}
	return s.state.Chats[i].Clone(), nil
}

// ActiveChatID returns the id of the chat receiving new messages.
func (s *Service) ActiveChatID(_ context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveChatID
}

// Theme returns the selected catalog entry.
func (s *Service) Theme(_ context.Context) theme.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return theme.Resolve(s.themes, s.state.ThemeID)
}

// CreateChat appends a new greeted chat and makes it active.
func (s *Service) CreateChat(ctx context.Context) (chat.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	created := chat.Chat{
		ID:        chat.NewID(),
		Name:      chatName(len(s.state.Chats) + 1),
		Messages:  []chat.Message{chat.NewBotMessage(newChatGreeting(s.state.BotName), now)},
		Timestamp: now,
	}
	s.state.Chats = append(s.state.Chats, created)
	s.state.ActiveChatID = created.ID

	s.commitLocked(ctx)
	s.logger.Debug("chat created", zap.String("chatId", created.ID), zap.String("name", created.Name))
	return created.Clone(), nil
}

// DeleteChat removes a chat unless it is the last one. Deleting the active
// chat hands activity to the first remaining chat.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if len(s.state.Chats) <= 1 {
		s.mu.Unlock()
		return ErrLastChat
	}
	i := s.state.Find(chatID)
	if i < 0 {
		s.mu.Unlock()
		return ErrChatNotFound
	}

	s.state.Chats = append(s.state.Chats[:i:i], s.state.Chats[i+1:]...)
	if s.state.ActiveChatID == chatID {
		s.state.ActiveChatID = s.state.Chats[0].ID
	}
	s.resetLocked(chatID)
	s.commitLocked(ctx)
	s.mu.Unlock()

	s.logger.Debug("chat deleted", zap.String("chatId", chatID))
	return nil
}

// SwitchChat makes an existing chat active.
func (s *Service) SwitchChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Find(chatID) < 0 {
		return ErrChatNotFound
	}
	if s.state.ActiveChatID == chatID {
		return nil
	}
	s.state.ActiveChatID = chatID
	s.commitLocked(ctx)
	return nil
}

// RestartChat replaces the active chat's log with a single fresh greeting.
func (s *Service) RestartChat(ctx context.Context) (chat.Chat, error) {
	s.mu.Lock()
	i := s.state.Find(s.state.ActiveChatID)
	if i < 0 {
		s.mu.Unlock()
		return chat.Chat{}, ErrChatNotFound
	}

	now := s.now()
	target := &s.state.Chats[i]
	target.Messages = []chat.Message{chat.NewBotMessage(restartGreeting(s.state.BotName), now)}
	target.Timestamp = now
	restarted := target.Clone()

	s.resetLocked(restarted.ID)
	s.commitLocked(ctx)
	s.mu.Unlock()

	return restarted, nil
}

// resetLocked runs the reset hooks before s.mu is released, so a reply
// already waiting on the lock observes its cancelled context.
func (s *Service) resetLocked(chatID string) {
	for _, fn := range s.onReset {
		fn(chatID)
	}
}

// AppendActive appends msg to the active chat and returns that chat's id.
func (s *Service) AppendActive(ctx context.Context, msg chat.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID := s.state.ActiveChatID
	if err := s.appendLocked(ctx, chatID, msg); err != nil {
		return "", err
	}
	return chatID, nil
}

// AppendMessage appends msg to the given chat and bumps its timestamp.
func (s *Service) AppendMessage(ctx context.Context, chatID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, chatID, msg)
}

func (s *Service) appendLocked(ctx context.Context, chatID string, msg chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i := s.state.Find(chatID)
	if i < 0 {
		return ErrChatNotFound
	}
	if msg.ID == "" {
		msg.ID = chat.NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	target := &s.state.Chats[i]
	target.Messages = append(target.Messages, msg)
	target.Timestamp = s.now()

	s.metrics.ObserveMessage(string(msg.Sender))
	s.events.Publish(events.Event{Type: events.TypeMessage, ChatID: chatID, Data: msg})
	s.commitLocked(ctx)
	return nil
}

// SetBotName renames the bot. Existing messages keep the old name.
func (s *Service) SetBotName(ctx context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.BotName == name {
		return
	}
	s.state.BotName = name
	s.commitLocked(ctx)
}

// SetBotAvatar changes the bot avatar, keeping at most MaxAvatarUnits UTF-16 units.
func (s *Service) SetBotAvatar(ctx context.Context, avatar string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	avatar = truncateUTF16(avatar, MaxAvatarUnits)
	if s.state.BotAvatar == avatar {
		return
	}
	s.state.BotAvatar = avatar
	s.commitLocked(ctx)
}

// SetTheme selects a catalog theme.
func (s *Service) SetTheme(ctx context.Context, themeID string) error {
	if _, ok := s.themes.FindByID(themeID); !ok {
		return ErrThemeNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.ThemeID == themeID {
		return nil
	}
	s.state.ThemeID = themeID
	s.commitLocked(ctx)
	return nil
}

// commitLocked persists the whole session and announces the change.
// Storage failures are logged; the in-memory state stays committed.
func (s *Service) commitLocked(ctx context.Context) {
	s.metrics.SetChats(len(s.state.Chats))

	raw, err := EncodeRecord(s.state)
	if err == nil {
		err = s.store.SetItem(ctx, s.key, raw)
	}
	s.metrics.ObserveStorageWrite(err)
	if err != nil {
		s.logger.Error("failed to persist session", zap.String("key", s.key), zap.Error(err))
	}

	s.events.Publish(events.Event{Type: events.TypeState, ChatID: s.state.ActiveChatID, Data: overviewOf(s.state)})
}

// Overview is the lightweight state pushed on every change. Message bodies
// travel separately in message events.
type Overview struct {
	Chats        []chat.Summary `json:"chats"`
	ActiveChatID string         `json:"currentChatId"`
	ThemeID      string         `json:"themeId"`
	BotName      string         `json:"botName"`
	BotAvatar    string         `json:"botAvatar"`
}

func overviewOf(state chat.State) Overview {
	summaries := make([]chat.Summary, 0, len(state.Chats))
	for _, c := range state.Chats {
		summaries = append(summaries, c.Summarize())
	}
	return Overview{
		Chats:        summaries,
		ActiveChatID: state.ActiveChatID,
		ThemeID:      state.ThemeID,
		BotName:      state.BotName,
		BotAvatar:    state.BotAvatar,
	}
}

// Overview returns the current lightweight state.
func (s *Service) Overview(_ context.Context) Overview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overviewOf(s.state)
}
