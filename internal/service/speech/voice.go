package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	"github.com/zhouzirui/tutibot/backend/internal/model/speech"
)

// DefaultLanguage is the recognition locale used when none is configured.
const DefaultLanguage = "ru-RU"

// UnsupportedNotice is shown when voice input cannot be used.
const UnsupportedNotice = "Voice input is not supported by your browser"

var ErrUnsupported = errors.New("voice input is not supported")

// Transcripts receives recognized phrases.
type Transcripts interface {
	AppendTranscript(transcript string)
}

// Voice toggles recording. At most one session runs at a time and the
// first final result ends it.
type Voice struct {
	check      CapabilityCheck
	recognizer Recognizer
	sink       Transcripts
	language   string
	events     events.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.Mutex
	session Session
}

// NewVoice wires voice capture. An empty language means DefaultLanguage.
func NewVoice(check CapabilityCheck, recognizer Recognizer, sink Transcripts, language string, publisher events.Publisher, m *metrics.Metrics, logger *zap.Logger) *Voice {
	if language == "" {
		language = DefaultLanguage
	}
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Voice{
		check:      check,
		recognizer: recognizer,
		sink:       sink,
		language:   language,
		events:     publisher,
		metrics:    m,
		logger:     logger,
	}
}

// Recording reports whether a session is running.
func (v *Voice) Recording() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session != nil
}

// Toggle stops a running session or starts a new one, returning the new
// recording flag. Without capability it returns ErrUnsupported and leaves
// the state alone.
func (v *Voice) Toggle(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session != nil {
		s := v.session
		v.session = nil
		s.Stop()
		v.publishRecording(false)
		return false, nil
	}

	if v.check == nil || v.recognizer == nil {
		return false, ErrUnsupported
	}
	if avail := v.check(); !avail.Supported {
		v.logger.Info("voice input unavailable", zap.String("reason", avail.Reason))
		return false, ErrUnsupported
	}

	s, err := v.recognizer.Start(ctx, speech.DefaultOptions(v.language))
	if err != nil {
		return false, fmt.Errorf("start recognition: %w", err)
	}
	v.session = s
	v.metrics.IncRecordings()
	v.publishRecording(true)

	go v.watch(s)
	return true, nil
}

// Close stops any running session.
func (v *Voice) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session != nil {
		v.session.Stop()
		v.session = nil
	}
}

func (v *Voice) watch(s Session) {
	for evt := range s.Events() {
		switch evt.Kind {
		case speech.EventResult:
			if !evt.IsFinal {
				continue
			}
			if v.finish(s) {
				v.sink.AppendTranscript(evt.Transcript)
				s.Stop()
			}
			return
		case speech.EventError:
			v.logger.Warn("speech recognition error", zap.String("error", evt.Error))
			v.finish(s)
			return
		case speech.EventEnd:
			v.finish(s)
			return
		}
	}
	v.finish(s)
}

// finish clears s if it is still the running session.
func (v *Voice) finish(s Session) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session != s {
		return false
	}
	v.session = nil
	v.publishRecording(false)
	return true
}

func (v *Voice) publishRecording(recording bool) {
	v.events.Publish(events.Event{Type: events.TypeRecording, Data: map[string]bool{"recording": recording}})
}
