package memory

import (
	"context"
	"testing"
	"time"

	"quiz-room-service/internal/domain"
)

func TestBrokerFansOutPerRoom(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()

	a, cancelA, _ := broker.Subscribe(ctx, "ROOM01")
	defer cancelA()
	b, cancelB, _ := broker.Subscribe(ctx, "ROOM01")
	defer cancelB()
	other, cancelOther, _ := broker.Subscribe(ctx, "ROOM02")
	defer cancelOther()

	event, _ := domain.NewEvent(domain.EventParticipantJoined, "ROOM01", time.Now(), map[string]string{"userId": "u1"})
	broker.Publish(ctx, event)

	for _, ch := range []<-chan domain.Event{a, b} {
		select {
		case got := <-ch:
			if got.ID != event.ID {
				t.Fatalf("expected event %s, got %s", event.ID, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected event delivery")
		}
	}
	select {
	case got := <-other:
		t.Fatalf("unexpected cross-room event %+v", got)
	default:
	}
}

func TestBrokerEvictsSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	ctx := context.Background()
	slow, cancelSlow, _ := broker.Subscribe(ctx, "ROOM01")
	defer cancelSlow()

	var first domain.Event
	for i := 0; i < subscriberBuffer+1; i++ {
		event, _ := domain.NewEvent(domain.EventAnswerProgress, "ROOM01", time.Now(), i)
		if i == 0 {
			first = event
		}
		broker.Publish(ctx, event)
	}

	got := <-slow
	if got.ID != first.ID {
		t.Fatalf("expected buffered events kept in order")
	}
	received := 1
	for range slow {
		received++
	}
	if received != subscriberBuffer {
		t.Fatalf("expected %d buffered events before close, got %d", subscriberBuffer, received)
	}
	if broker.Subscribers("ROOM01") != 0 {
		t.Fatalf("expected evicted subscriber removed")
	}

	// cancel after eviction must not close twice.
	cancelSlow()

	fresh, cancelFresh, _ := broker.Subscribe(ctx, "ROOM01")
	defer cancelFresh()
	event, _ := domain.NewEvent(domain.EventRoomEnded, "ROOM01", time.Now(), nil)
	broker.Publish(ctx, event)
	if got := <-fresh; got.ID != event.ID {
		t.Fatalf("expected re-subscribed channel to receive events")
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	broker := NewBroker()
	ch, cancel, _ := broker.Subscribe(context.Background(), "ROOM01")
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if broker.Subscribers("ROOM01") != 0 {
		t.Fatalf("expected topic cleaned up")
	}
}
