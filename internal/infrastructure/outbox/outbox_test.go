package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/snackshop/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct{ n int }

func (testEvent) EventName() string { return "test.event" }

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	var got []int
	bus.Subscribe("test.event", func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(testEvent).n)
		return nil
	})
	bus.Start(context.Background())

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{n: i}))
	}
	bus.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 20)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestBusSurvivesHandlerPanicAndError(t *testing.T) {
	bus := NewBus(nil, WithConcurrency(2), WithHandlerTimeout(time.Second))
	delivered := make(chan struct{}, 1)
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error {
		delivered <- struct{}{}
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{}))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy handler was not called")
	}
}

func TestPublishAfterStop(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())

	err := bus.Publish(context.Background(), testEvent{})
	assert.ErrorIs(t, err, domoutbox.ErrClosed)
}
