package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"quiz-room-service/internal/domain"
)

// DefaultQueue receives one message per completed room.
const DefaultQueue = "room.completed"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RoomCompleted is the message body consumed by leaderboard and achievement services.
type RoomCompleted struct {
	RoomCode  string               `json:"roomCode"`
	QuizID    string               `json:"quizId"`
	HostID    string               `json:"hostId"`
	StartTime *time.Time           `json:"startTime,omitempty"`
	EndTime   *time.Time           `json:"endTime,omitempty"`
	Standings []domain.Participant `json:"standings"`
}

// ResultPublisher sends room results to a durable queue.
type ResultPublisher struct {
	conn    *amqp.Connection
	channel Channel
	queue   string

	mu       sync.Mutex
	declared bool
}

// Dial connects to the broker at url and opens a publishing channel.
func Dial(url, queue string) (*ResultPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	publisher := NewResultPublisher(channel, queue)
	publisher.conn = conn
	return publisher, nil
}

func NewResultPublisher(channel Channel, queue string) *ResultPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &ResultPublisher{channel: channel, queue: queue}
}

func (p *ResultPublisher) PublishResult(ctx context.Context, result domain.RoomResult) error {
	body, err := json.Marshal(RoomCompleted{
		RoomCode:  result.Room.Code,
		QuizID:    result.Room.QuizID,
		HostID:    result.Room.HostID,
		StartTime: result.Room.StartTime,
		EndTime:   result.Room.EndTime,
		Standings: result.Standings,
	})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.declared {
		if _, err := p.channel.QueueDeclare(
			p.queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		p.declared = true
	}

	return p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    result.Room.Code,
			Type:         DefaultQueue,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (p *ResultPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
