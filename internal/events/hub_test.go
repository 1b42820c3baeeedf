package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish(Event{Type: TypeTyping, ChatID: "1", Data: true})

	for _, ch := range []<-chan Event{a, b} {
		evt := <-ch
		assert.Equal(t, TypeTyping, evt.Type)
		assert.Equal(t, "1", evt.ChatID)
		assert.NotZero(t, evt.Timestamp)
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Type: TypeState})
	hub.Publish(Event{Type: TypeDraft})

	evt := <-ch
	assert.Equal(t, TypeState, evt.Type)
	assert.Len(t, ch, 0)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(Event{Type: TypeState})
}
