// Package speech implements voice capture. Recognition runs in the
// browser; the Relay forwards commands to the connected client and feeds
// its recognition callbacks back into sessions.
package speech

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/model/speech"
)

// Relay commands sent to the client.
const (
	CommandStart = "speech.start"
	CommandStop  = "speech.stop"
)

var ErrNoClient = errors.New("no speech client connected")

// Command is a recognition instruction for the client.
type Command struct {
	Type    string                     `json:"type"`
	Options *speech.RecognitionOptions `json:"options,omitempty"`
}

// Client is a connected browser able to run recognition.
type Client interface {
	SendCommand(cmd Command) error
}

// Session is one running recognition. Events is closed when the session ends.
type Session interface {
	Events() <-chan speech.Event
	Stop()
}

// Recognizer starts recognition sessions.
type Recognizer interface {
	Start(ctx context.Context, opts speech.RecognitionOptions) (Session, error)
}

// CapabilityCheck reports whether voice input can be used right now.
type CapabilityCheck func() speech.Availability

// Relay is a Recognizer backed by the most recently attached client.
type Relay struct {
	enabled bool
	logger  *zap.Logger

	mu        sync.Mutex
	client    Client
	supported bool
	session   *relaySession
}

// NewRelay creates a relay. A disabled relay never reports support.
func NewRelay(enabled bool, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{enabled: enabled, logger: logger}
}

// Attach makes c the active client, replacing any previous one. The
// returned func detaches c if it is still active.
func (r *Relay) Attach(c Client) func() {
	r.mu.Lock()
	r.endLocked(speech.Event{Kind: speech.EventError, Error: "client replaced"})
	r.client = c
	r.supported = false
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.client != c {
			return
		}
		r.endLocked(speech.Event{Kind: speech.EventError, Error: "client disconnected"})
		r.client = nil
		r.supported = false
	}
}

// Hello records the capability reported by c.
func (r *Relay) Hello(c Client, supported bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == c {
		r.supported = supported
	}
}

// Capability is the relay's CapabilityCheck.
func (r *Relay) Capability() speech.Availability {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.enabled:
		return speech.Unsupported("speech input disabled")
	case r.client == nil:
		return speech.Unsupported(ErrNoClient.Error())
	case !r.supported:
		return speech.Unsupported("client has no speech recognition")
	}
	return speech.Supported()
}

// Start asks the active client to begin recognition. A running session is
// ended first.
func (r *Relay) Start(_ context.Context, opts speech.RecognitionOptions) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, ErrNoClient
	}
	r.endLocked(speech.Event{Kind: speech.EventEnd})

	if err := r.client.SendCommand(Command{Type: CommandStart, Options: &opts}); err != nil {
		return nil, err
	}
	s := &relaySession{relay: r, events: make(chan speech.Event, 8)}
	r.session = s
	return s, nil
}

// Deliver routes a recognition callback from c to the running session.
// Callbacks from inactive clients, or with no session running, are dropped.
func (r *Relay) Deliver(c Client, evt speech.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != c || r.session == nil {
		return
	}
	switch evt.Kind {
	case speech.EventError, speech.EventEnd:
		r.endLocked(evt)
	default:
		select {
		case r.session.events <- evt:
		default:
			r.logger.Warn("speech event dropped", zap.String("kind", string(evt.Kind)))
		}
	}
}

func (r *Relay) stop(s *relaySession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != s {
		return
	}
	if r.client != nil {
		if err := r.client.SendCommand(Command{Type: CommandStop}); err != nil {
			r.logger.Warn("failed to send speech stop", zap.Error(err))
		}
	}
	r.endLocked(speech.Event{Kind: speech.EventEnd})
}

// endLocked delivers a terminal event to the running session and closes it.
func (r *Relay) endLocked(last speech.Event) {
	s := r.session
	if s == nil {
		return
	}
	r.session = nil
	select {
	case s.events <- last:
	default:
	}
	close(s.events)
}

type relaySession struct {
	relay  *Relay
	events chan speech.Event
}

func (s *relaySession) Events() <-chan speech.Event {
	return s.events
}

func (s *relaySession) Stop() {
	s.relay.stop(s)
}
