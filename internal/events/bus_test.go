package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(4)
	ctx := context.Background()

	alice, cancelAlice := bus.Subscribe(ForUser("alice"))
	defer cancelAlice()
	bob, cancelBob := bus.Subscribe(ForUser("bob"))
	defer cancelBob()

	bus.Publish(ctx, Event{Type: PartnershipRequested, UserIDs: []string{"alice"}})
	bus.Publish(ctx, Event{Type: GoalPosted})

	first := <-alice
	assert.Equal(t, PartnershipRequested, first.Type)
	assert.False(t, first.At.IsZero())

	second := <-alice
	assert.Equal(t, GoalPosted, second.Type)

	onlyBob := <-bob
	assert.Equal(t, GoalPosted, onlyBob.Type)
	assert.Empty(t, bob)
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe(nil)
	defer cancel()

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), Event{Type: SlotReserved})
	}

	assert.Len(t, ch, 1)
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe(nil)
	require.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())

	bus.Publish(context.Background(), Event{Type: SlotReleased})
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe(nil)
	defer cancel()

	bus.Close()
	bus.Publish(context.Background(), Event{Type: SlotFull})

	_, open := <-ch
	assert.False(t, open)

	late, _ := bus.Subscribe(nil)
	_, open = <-late
	assert.False(t, open)
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus(64)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Event{Type: MessageSent})
		}()
		go func() {
			defer wg.Done()
			_, cancel := bus.Subscribe(nil)
			cancel()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Subscribers())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Publish(context.Background(), Event{Type: StreakUpdated})
	r.Publish(context.Background(), Event{Type: SlotReserved})

	assert.Equal(t, []Type{StreakUpdated, SlotReserved}, r.Types())
	assert.Len(t, r.Events(), 2)
}
