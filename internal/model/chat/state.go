package chat

// State is the complete session: every chat plus the widget settings.
type State struct {
	Chats        []Chat `json:"chats"`
	ActiveChatID string `json:"currentChatId"`
	ThemeID      string `json:"themeId"`
	BotName      string `json:"botName"`
	BotAvatar    string `json:"botAvatar"`
}

// Clone deep-copies s so callers cannot reach the manager's slices.
func (s State) Clone() State {
	out := s
	out.Chats = make([]Chat, len(s.Chats))
	for i, c := range s.Chats {
		out.Chats[i] = c.Clone()
	}
	return out
}

// Find returns the index of the chat with the given id, or -1.
func (s State) Find(id string) int {
	for i, c := range s.Chats {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Active returns the active chat. ok is false only if the invariant is broken.
func (s State) Active() (Chat, bool) {
	if i := s.Find(s.ActiveChatID); i >= 0 {
		return s.Chats[i], true
	}
	return Chat{}, false
}
