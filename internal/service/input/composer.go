// Package input turns user input (typed text, uploaded images, voice
// transcripts) into chat messages and bot replies.
package input

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
	"github.com/zhouzirui/tutibot/backend/internal/service/responder"
)

var (
	ErrEmptyText = errors.New("message text is empty")
	ErrNoFile    = errors.New("no file selected")
)

// ImageMessageText is the caption of every uploaded image.
const ImageMessageText = "Sent a photo"

// Chats is the part of the chat service the composer writes to.
type Chats interface {
	AppendActive(ctx context.Context, msg chat.Message) (string, error)
}

// Replier schedules bot replies bound to a chat.
type Replier interface {
	ReplyText(chatID, input string) *responder.Task
	ReplyImage(chatID string) *responder.Task
}

// Sent describes an accepted submission.
type Sent struct {
	ChatID  string
	Message chat.Message
	Reply   *responder.Task
}

// Composer holds the text input buffer and submits messages.
type Composer struct {
	chats   Chats
	replier Replier
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	draft string
}

// NewComposer wires the composer to the chat service and responder.
func NewComposer(chats Chats, replier Replier, publisher events.Publisher, logger *zap.Logger) *Composer {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		chats:   chats,
		replier: replier,
		events:  publisher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Draft returns the current input buffer.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the input buffer.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.publishDraft(text)
}

// AppendTranscript appends a recognized phrase to the buffer, space-prefixed.
func (c *Composer) AppendTranscript(transcript string) {
	c.mu.Lock()
	c.draft += " " + transcript
	draft := c.draft
	c.mu.Unlock()
	c.publishDraft(draft)
}

// SendDraft submits the input buffer, as the Enter key does.
func (c *Composer) SendDraft(ctx context.Context) (Sent, error) {
	return c.SendText(ctx, c.Draft())
}

// SendText appends a user message to the active chat and schedules the
// echo reply for that same chat. Whitespace-only text is rejected with
// ErrEmptyText and changes nothing.
func (c *Composer) SendText(ctx context.Context, text string) (Sent, error) {
	if strings.TrimSpace(text) == "" {
		return Sent{}, ErrEmptyText
	}

	msg := chat.NewUserMessage(text, c.now())
	chatID, err := c.chats.AppendActive(ctx, msg)
	if err != nil {
		return Sent{}, err
	}
	c.SetDraft("")

	return Sent{ChatID: chatID, Message: msg, Reply: c.replier.ReplyText(chatID, text)}, nil
}

func (c *Composer) publishDraft(text string) {
	c.events.Publish(events.Event{Type: events.TypeDraft, Data: map[string]string{"text": text}})
}
