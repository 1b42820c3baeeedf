// Package responder produces the scripted bot replies. Every reply is a
// Task bound to the chat that triggered it; completing the task is the
// only way a bot message reaches a chat.
package responder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
)

// ImageAcknowledgement is the fixed reply to any uploaded image.
const ImageAcknowledgement = "Great photo! I can see the image and can analyze it. What would you like to know about it?"

// TextReply quotes the user's input inside the fixed reply template.
func TextReply(input string) string {
	return fmt.Sprintf(`Got your request: "%s". I carry out any command and answer questions!`, input)
}

// Sink receives delivered bot messages.
type Sink interface {
	AppendMessage(ctx context.Context, chatID string, msg chat.Message) error
}

// Config holds the simulated typing latency.
type Config struct {
	TextDelay  time.Duration
	ImageDelay time.Duration
}

// Kind tells which input triggered a task.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Task is one pending bot reply.
type Task struct {
	ChatID string
	Kind   Kind

	text   string
	delay  time.Duration
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	err   error
	reply chat.Message
}

// Done is closed once the reply was delivered, failed or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the task if it has not delivered yet.
func (t *Task) Cancel() {
	t.cancel()
}

// Err reports the outcome after Done: nil on delivery, context.Canceled
// when cancelled, or the sink error.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Reply returns the delivered message. The zero Message means nothing was delivered.
func (t *Task) Reply() chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reply
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responder schedules and tracks reply tasks.
type Responder struct {
	cfg     Config
	sink    Sink
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	root     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	byChat   map[string]map[*Task]struct{}
	inFlight int
}

// New creates a Responder delivering into sink.
func New(cfg Config, sink Sink, publisher events.Publisher, m *metrics.Metrics, logger *zap.Logger) *Responder {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	root, stop := context.WithCancel(context.Background())
	return &Responder{
		cfg:     cfg,
		sink:    sink,
		events:  publisher,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		root:    root,
		stop:    stop,
		byChat:  make(map[string]map[*Task]struct{}),
	}
}

// ReplyText schedules the quoted echo of input for chatID.
func (r *Responder) ReplyText(chatID, input string) *Task {
	return r.schedule(chatID, KindText, TextReply(input), r.cfg.TextDelay)
}

// ReplyImage schedules the fixed image acknowledgement for chatID.
func (r *Responder) ReplyImage(chatID string) *Task {
	return r.schedule(chatID, KindImage, ImageAcknowledgement, r.cfg.ImageDelay)
}

// Typing reports whether a reply is pending for chatID.
func (r *Responder) Typing(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byChat[chatID]) > 0
}

// Pending returns the number of replies in flight across all chats.
func (r *Responder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// CancelChat cancels every pending reply bound to chatID.
func (r *Responder) CancelChat(chatID string) {
	r.mu.Lock()
	tasks := make([]*Task, 0, len(r.byChat[chatID]))
	for t := range r.byChat[chatID] {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	if len(tasks) > 0 {
		r.logger.Debug("cancelled pending replies", zap.String("chatId", chatID), zap.Int("count", len(tasks)))
	}
}

// Close cancels all pending replies and waits for their goroutines.
func (r *Responder) Close() {
	r.stop()
	r.wg.Wait()
}

func (r *Responder) schedule(chatID string, kind Kind, text string, delay time.Duration) *Task {
	ctx, cancel := context.WithCancel(r.root)
	t := &Task{
		ChatID: chatID,
		Kind:   kind,
		text:   text,
		delay:  delay,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	set, ok := r.byChat[chatID]
	if !ok {
		set = make(map[*Task]struct{})
		r.byChat[chatID] = set
	}
	set[t] = struct{}{}
	r.inFlight++
	startedTyping := len(set) == 1
	r.metrics.SetPendingReplies(r.inFlight)
	r.wg.Add(1)
	r.mu.Unlock()

	if startedTyping {
		r.publishTyping(chatID, true)
	}

	go r.run(t)
	return t
}

func (r *Responder) run(t *Task) {
	defer r.wg.Done()
	defer t.cancel()

	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	var (
		err   error
		reply chat.Message
	)
	select {
	case <-t.ctx.Done():
		err = t.ctx.Err()
	case <-timer.C:
		reply = chat.NewBotMessage(t.text, r.now())
		if err = r.sink.AppendMessage(t.ctx, t.ChatID, reply); err != nil {
			reply = chat.Message{}
			if errors.Is(err, context.Canceled) {
				r.logger.Debug("reply cancelled while delivering", zap.String("chatId", t.ChatID))
			} else {
				r.logger.Warn("dropping bot reply", zap.String("chatId", t.ChatID), zap.Error(err))
			}
		}
	}

	t.mu.Lock()
	t.err = err
	t.reply = reply
	t.mu.Unlock()

	r.finish(t)
	close(t.done)
}

func (r *Responder) finish(t *Task) {
	r.mu.Lock()
	set := r.byChat[t.ChatID]
	delete(set, t)
	stoppedTyping := len(set) == 0
	if stoppedTyping {
		delete(r.byChat, t.ChatID)
	}
	r.inFlight--
	r.metrics.SetPendingReplies(r.inFlight)
	r.mu.Unlock()

	if stoppedTyping {
		r.publishTyping(t.ChatID, false)
	}
}

func (r *Responder) publishTyping(chatID string, typing bool) {
	r.events.Publish(events.Event{
		Type:   events.TypeTyping,
		ChatID: chatID,
		Data:   map[string]bool{"typing": typing},
	})
}
