package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"quiz-room-service/internal/domain"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	declareErr error
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestResultPublisherSendsStandings(t *testing.T) {
	channel := &fakeChannel{}
	publisher := NewResultPublisher(channel, "")

	end := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	result := domain.RoomResult{
		Room: domain.Room{Code: "ABC123", QuizID: "quiz-1", HostID: "host", Status: domain.RoomCompleted, EndTime: &end},
		Standings: []domain.Participant{
			{UserID: "c", Score: 20, Rank: 1},
			{UserID: "b", Score: 10, Rank: 2},
		},
	}
	for i := 0; i < 2; i++ {
		if err := publisher.PublishResult(context.Background(), result); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if len(channel.declared) != 1 || channel.declared[0] != DefaultQueue {
		t.Fatalf("expected queue declared once, got %v", channel.declared)
	}
	if len(channel.published) != 2 || channel.keys[0] != DefaultQueue {
		t.Fatalf("expected two messages routed to %s, got %v", DefaultQueue, channel.keys)
	}

	msg := channel.published[0]
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected message properties %+v", msg)
	}
	var body RoomCompleted
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RoomCode != "ABC123" || len(body.Standings) != 2 || body.Standings[0].Rank != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestResultPublisherDeclareFailure(t *testing.T) {
	channel := &fakeChannel{declareErr: errors.New("channel closed")}
	publisher := NewResultPublisher(channel, "results")

	if err := publisher.PublishResult(context.Background(), domain.RoomResult{}); err == nil {
		t.Fatalf("expected declare error")
	}
	if len(channel.published) != 0 {
		t.Fatalf("expected nothing published")
	}
}
