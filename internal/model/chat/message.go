package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Message is one immutable turn of a chat log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image,omitempty"`
}

// NewUserMessage builds a user-authored message stamped with now.
func NewUserMessage(text string, now time.Time) Message {
	return Message{ID: NewID(), Text: text, Sender: SenderUser, Timestamp: now}
}

// NewImageMessage builds a user-authored message carrying an image data URL.
func NewImageMessage(text, image string, now time.Time) Message {
	msg := NewUserMessage(text, now)
	msg.Image = image
	return msg
}

// NewBotMessage builds a bot-authored message stamped with now.
func NewBotMessage(text string, now time.Time) Message {
	return Message{ID: NewID(), Text: text, Sender: SenderBot, Timestamp: now}
}

// NewID returns a time-ordered unique identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
