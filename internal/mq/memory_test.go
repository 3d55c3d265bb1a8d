package mq

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
)

func TestMemoryBus_DeliversInOrder(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	jobID := uuid.New()
	for i := 0; i < 5; i++ {
		p := float64(i) / 10
		event := domain.NewProgressEvent(jobID).WithProgress(p)
		if err := bus.PublishProgress(context.Background(), event); err != nil {
			t.Fatalf("PublishProgress: %v", err)
		}
	}

	// Events for one publisher must arrive in publish order.
	for i := 0; i < 5; i++ {
		event := <-ch
		want := float64(i) / 10
		if event.Progress == nil || *event.Progress != want {
			t.Errorf("event %d: Progress = %v, want %v", i, event.Progress, want)
		}
	}
}

func TestMemoryBus_FanOutToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	event := domain.NewProgressEvent(uuid.New()).WithLog("hello")
	if err := bus.PublishProgress(context.Background(), event); err != nil {
		t.Fatal(err)
	}

	for i, ch := range []<-chan domain.ProgressEvent{ch1, ch2} {
		got := <-ch
		if got.Log != "hello" {
			t.Errorf("subscriber %d: Log = %q, want %q", i, got.Log, "hello")
		}
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	// Subscriber that never reads: its buffer fills up and further
	// events are dropped, but publishing keeps returning.
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	event := domain.NewProgressEvent(uuid.New()).WithLog("spam")
	for i := 0; i < defaultSubscriberBuffer*2; i++ {
		if err := bus.PublishProgress(context.Background(), event); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
}

func TestMemoryBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	if err := bus.PublishProgress(context.Background(), domain.NewProgressEvent(uuid.New())); err != nil {
		t.Fatal(err)
	}
}
