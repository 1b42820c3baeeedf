package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/metrics"
	"github.com/zhouzirui/tutibot/backend/internal/model/speech"
)

type fakeClient struct {
	mu       sync.Mutex
	commands []Command
	fail     error
}

func (c *fakeClient) SendCommand(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.commands = append(c.commands, cmd)
	return nil
}

func (c *fakeClient) sent() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.commands...)
}

type transcriptSink struct {
	mu  sync.Mutex
	got []string
}

func (s *transcriptSink) AppendTranscript(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
}

func (s *transcriptSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func newVoice(t *testing.T, enabled bool) (*Voice, *Relay, *fakeClient, *transcriptSink) {
	t.Helper()
	relay := NewRelay(enabled, nil)
	client := &fakeClient{}
	detach := relay.Attach(client)
	t.Cleanup(detach)
	sink := &transcriptSink{}
	voice := NewVoice(relay.Capability, relay, sink, "", nil, metrics.New(), nil)
	t.Cleanup(voice.Close)
	return voice, relay, client, sink
}

func notRecording(v *Voice) func() bool {
	return func() bool { return !v.Recording() }
}

func TestCapability(t *testing.T) {
	relay := NewRelay(true, nil)
	assert.False(t, relay.Capability().Supported)

	client := &fakeClient{}
	detach := relay.Attach(client)
	assert.False(t, relay.Capability().Supported)

	relay.Hello(client, true)
	assert.True(t, relay.Capability().Supported)

	relay.Hello(&fakeClient{}, false)
	assert.True(t, relay.Capability().Supported)

	detach()
	assert.Equal(t, ErrNoClient.Error(), relay.Capability().Reason)
}

func TestCapabilityDisabled(t *testing.T) {
	relay := NewRelay(false, nil)
	client := &fakeClient{}
	relay.Attach(client)
	relay.Hello(client, true)

	assert.False(t, relay.Capability().Supported)
}

func TestToggleUnsupported(t *testing.T) {
	voice, _, client, _ := newVoice(t, true)

	recording, err := voice.Toggle(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, recording)
	assert.Empty(t, client.sent())
}

func TestToggleStartsAndStops(t *testing.T) {
	voice, relay, client, sink := newVoice(t, true)
	relay.Hello(client, true)

	recording, err := voice.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, recording)

	cmds := client.sent()
	require.Len(t, cmds, 1)
	assert.Equal(t, CommandStart, cmds[0].Type)
	require.NotNil(t, cmds[0].Options)
	assert.Equal(t, speech.RecognitionOptions{Language: "ru-RU"}, *cmds[0].Options)

	recording, err = voice.Toggle(context.Background())
	require.NoError(t, err)
	assert.False(t, recording)
	assert.Equal(t, CommandStop, client.sent()[1].Type)
	assert.Empty(t, sink.all())
}

func TestFinalResultAppendsTranscript(t *testing.T) {
	voice, relay, client, sink := newVoice(t, true)
	relay.Hello(client, true)
	_, err := voice.Toggle(context.Background())
	require.NoError(t, err)

	relay.Deliver(client, speech.Event{Kind: speech.EventResult, Transcript: "partial"})
	relay.Deliver(client, speech.Event{Kind: speech.EventResult, Transcript: "turn on the lights", IsFinal: true})

	stopped := func() bool {
		cmds := client.sent()
		return len(cmds) == 2 && cmds[1].Type == CommandStop
	}
	require.Eventually(t, stopped, time.Second, 5*time.Millisecond)
	assert.False(t, voice.Recording())
	assert.Equal(t, []string{"turn on the lights"}, sink.all())

	relay.Deliver(client, speech.Event{Kind: speech.EventResult, Transcript: "late", IsFinal: true})
	assert.Equal(t, []string{"turn on the lights"}, sink.all())
}

func TestErrorAndEndClearRecording(t *testing.T) {
	for _, kind := range []speech.EventKind{speech.EventError, speech.EventEnd} {
		t.Run(string(kind), func(t *testing.T) {
			voice, relay, client, sink := newVoice(t, true)
			relay.Hello(client, true)
			_, err := voice.Toggle(context.Background())
			require.NoError(t, err)

			relay.Deliver(client, speech.Event{Kind: kind, Error: "no-speech"})

			require.Eventually(t, notRecording(voice), time.Second, 5*time.Millisecond)
			assert.Empty(t, sink.all())
		})
	}
}

func TestDetachEndsSession(t *testing.T) {
	relay := NewRelay(true, nil)
	client := &fakeClient{}
	detach := relay.Attach(client)
	relay.Hello(client, true)
	voice := NewVoice(relay.Capability, relay, &transcriptSink{}, "en-US", nil, nil, nil)

	_, err := voice.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "en-US", client.sent()[0].Options.Language)

	detach()
	require.Eventually(t, notRecording(voice), time.Second, 5*time.Millisecond)
}

func TestStartFailure(t *testing.T) {
	voice, relay, client, _ := newVoice(t, true)
	relay.Hello(client, true)
	client.fail = errors.New("socket closed")

	_, err := voice.Toggle(context.Background())
	assert.EqualError(t, err, "start recognition: socket closed")
	assert.False(t, voice.Recording())
}

func TestRecordingEvents(t *testing.T) {
	hub := events.NewHub(8)
	ch, cancel := hub.Subscribe()
	defer cancel()

	relay := NewRelay(true, nil)
	client := &fakeClient{}
	relay.Attach(client)
	relay.Hello(client, true)
	voice := NewVoice(relay.Capability, relay, &transcriptSink{}, "", hub, nil, nil)

	_, err := voice.Toggle(context.Background())
	require.NoError(t, err)
	_, err = voice.Toggle(context.Background())
	require.NoError(t, err)

	var flags []bool
	for len(flags) < 2 {
		select {
		case evt := <-ch:
			require.Equal(t, events.TypeRecording, evt.Type)
			flags = append(flags, evt.Data.(map[string]bool)["recording"])
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for recording events")
		}
	}
	assert.Equal(t, []bool{true, false}, flags)
}

func TestCustomCapabilityCheck(t *testing.T) {
	relay := NewRelay(true, nil)
	relay.Attach(&fakeClient{})
	check := func() speech.Availability { return speech.Supported() }
	voice := NewVoice(check, relay, &transcriptSink{}, "", nil, nil, nil)

	recording, err := voice.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, recording)
}
