package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversByTypeThenAll(t *testing.T) {
	bus := NewBus(nil)
	var got []string

	bus.Subscribe(EntryCreated, func(e Event) { got = append(got, "typed:"+string(e.Type)) })
	bus.Subscribe(AlertCreated, func(e Event) { got = append(got, "alert") })
	bus.SubscribeAll(func(e Event) { got = append(got, "all:"+string(e.Type)) })

	bus.Publish(Event{Type: EntryCreated})

	assert.Equal(t, []string{"typed:entry_created", "all:entry_created"}, got)
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(nil)
	delivered := false

	bus.Subscribe(OccupancyChanged, func(Event) { panic("boom") })
	bus.Subscribe(OccupancyChanged, func(Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(Event{Type: OccupancyChanged}) })
	assert.True(t, delivered)
}

func TestBus_StampsOccurredAt(t *testing.T) {
	bus := NewBus(nil)
	var e Event
	bus.SubscribeAll(func(got Event) { e = got })

	bus.Publish(Event{Type: EmergencyActivated})

	assert.False(t, e.OccurredAt.IsZero())
}
