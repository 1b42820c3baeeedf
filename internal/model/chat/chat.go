package chat

import "time"

// PreviewFallback is shown in the chat list for a chat without messages.
const PreviewFallback = "No messages"

// Chat is a named conversation thread that owns its message log.
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a copy whose message slice is not shared with c.
func (c Chat) Clone() Chat {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// LastMessage returns the most recent message, if any.
func (c Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Preview returns the text shown under the chat name in the chat list.
func (c Chat) Preview() string {
	if last, ok := c.LastMessage(); ok && last.Text != "" {
		return last.Text
	}
	return PreviewFallback
}

// Summary is the chat list projection of a Chat.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Preview   string    `json:"preview"`
	Count     int       `json:"messageCount"`
	Timestamp time.Time `json:"timestamp"`
}

// Summarize projects c for the chat list.
func (c Chat) Summarize() Summary {
	return Summary{
		ID:        c.ID,
		Name:      c.Name,
		Preview:   c.Preview(),
		Count:     len(c.Messages),
		Timestamp: c.Timestamp,
	}
}
