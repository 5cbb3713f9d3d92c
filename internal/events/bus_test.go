package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubA()
	defer unsubB()

	bus.Emit("JobStarted", map[string]string{"job_id": "1"})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, "JobStarted", ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Emit("first", nil)
	bus.Emit("second", nil)

	ev := <-ch
	assert.Equal(t, "first", ev.Type)
	assert.Len(t, ch, 0)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, unsub := bus.Subscribe(1)
	require.Equal(t, 1, bus.Subscribers())

	unsub()
	unsub()
	assert.Equal(t, 0, bus.Subscribers())

	_, open := <-ch
	assert.False(t, open)

	bus.Emit("after", nil)
}
