package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
	"github.com/zhouzirui/tutibot/backend/internal/model/theme"
)

// ErrInvalidRecord reports a stored record that cannot be rehydrated.
var ErrInvalidRecord = errors.New("invalid session record")

// record is the persisted wire shape. botName and botAvatar are pointers so
// an absent field can be told apart from an empty one.
type record struct {
	Chats         []chat.Chat `json:"chats"`
	CurrentChatID string      `json:"currentChatId"`
	ThemeID       string      `json:"themeId"`
	BotName       *string     `json:"botName,omitempty"`
	BotAvatar     *string     `json:"botAvatar,omitempty"`
}

// DefaultState is the session used when nothing usable is stored.
func DefaultState(themes theme.Store, now time.Time) chat.State {
	return chat.State{
		Chats: []chat.Chat{{
			ID:   DefaultChatID,
			Name: chatName(1),
			Messages: []chat.Message{{
				ID:        DefaultChatID,
				Text:      welcomeGreeting,
				Sender:    chat.SenderBot,
				Timestamp: now,
			}},
			Timestamp: now,
		}},
		ActiveChatID: DefaultChatID,
		ThemeID:      themes.Default().ID,
		BotName:      DefaultBotName,
		BotAvatar:    DefaultBotAvatar,
	}
}

// EncodeRecord serializes the full session.
func EncodeRecord(state chat.State) (string, error) {
	name, avatar := state.BotName, state.BotAvatar
	rec := record{
		Chats:         state.Chats,
		CurrentChatID: state.ActiveChatID,
		ThemeID:       state.ThemeID,
		BotName:       &name,
		BotAvatar:     &avatar,
	}
	if rec.Chats == nil {
		rec.Chats = []chat.Chat{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode session record: %w", err)
	}
	return string(data), nil
}

// DecodeRecord parses a stored record and repairs the recoverable fields:
// unknown theme, missing identity and a dangling active chat id.
func DecodeRecord(raw string, themes theme.Store) (chat.State, error) {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return chat.State{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if len(rec.Chats) == 0 {
		return chat.State{}, fmt.Errorf("%w: no chats", ErrInvalidRecord)
	}

	seen := make(map[string]struct{}, len(rec.Chats))
	for i, c := range rec.Chats {
		if c.ID == "" {
			return chat.State{}, fmt.Errorf("%w: chat %d has no id", ErrInvalidRecord, i)
		}
		if _, dup := seen[c.ID]; dup {
			return chat.State{}, fmt.Errorf("%w: duplicate chat id %q", ErrInvalidRecord, c.ID)
		}
		seen[c.ID] = struct{}{}
		for _, m := range c.Messages {
			if !m.Sender.Valid() {
				return chat.State{}, fmt.Errorf("%w: message %q has sender %q", ErrInvalidRecord, m.ID, m.Sender)
			}
		}
		if c.Messages == nil {
			rec.Chats[i].Messages = []chat.Message{}
		}
	}

	state := chat.State{
		Chats:        rec.Chats,
		ActiveChatID: rec.CurrentChatID,
		ThemeID:      theme.Resolve(themes, rec.ThemeID).ID,
		BotName:      DefaultBotName,
		BotAvatar:    DefaultBotAvatar,
	}
	if rec.BotName != nil {
		state.BotName = *rec.BotName
	}
	if rec.BotAvatar != nil {
		state.BotAvatar = *rec.BotAvatar
	}
	if state.Find(state.ActiveChatID) < 0 {
		state.ActiveChatID = state.Chats[0].ID
	}
	return state, nil
}
