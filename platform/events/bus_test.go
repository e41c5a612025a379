package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type pinged struct{ BaseEvent }

func (pinged) EventName() string { return "test.pinged" }

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)
	boom := errors.New("boom")
	var calls int32
	bus.Subscribe("test.pinged", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return boom
	}))
	bus.Subscribe("test.pinged", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		panic("handler exploded")
	}))

	err := bus.PublishSync(context.Background(), pinged{NewBaseEvent()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublishOutlivesCallerContext(t *testing.T) {
	bus := NewInMemoryBus(nil)
	at := time.Date(2026, 4, 13, 8, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	got := make(chan error, 1)
	bus.Subscribe("test.pinged", HandlerFunc(func(ctx context.Context, e Event) error {
		if !e.OccurredAt().Equal(at) || e.OccurredAt().Location() != time.UTC {
			t.Errorf("expected %v in UTC, got %v", at, e.OccurredAt())
		}
		got <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pinged{At(at)})
	bus.Wait()

	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("handler saw cancelled context: %v", err)
		}
	default:
		t.Fatalf("expected handler to have run after Wait")
	}
}
