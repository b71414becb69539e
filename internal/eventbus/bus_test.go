package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: TypeReviveOK, Data: PeerData{Role: "watchdog", PID: 42}})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, TypeReviveOK, e.Type)
		assert.False(t, e.Time.IsZero())
		assert.Equal(t, 42, e.Data.(PeerData).PID)
	}

	unsubA()
	unsubA()
	_, ok := <-a
	assert.False(t, ok, "channel closed after unsubscribe")
	assert.NotPanics(t, func() { b.Publish(Event{Type: TypeStopped}) })
	require.Equal(t, TypeStopped, (<-c).Type)
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: TypePeerSilent})
	b.Publish(Event{Type: TypeShutdown})
	assert.Len(t, ch, 1)
	assert.Equal(t, TypePeerSilent, (<-ch).Type)
}

func TestNop(t *testing.T) {
	b := Nop()
	b.Publish(Event{Type: TypeStarted})
	ch, unsub := b.Subscribe(4)
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
}
