package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/domain"
)

const subscriberBuffer = 16

// Broker relays room events over Redis Pub/Sub so every instance sees them.
type Broker struct {
	client *redis.Client
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func (b *Broker) Publish(ctx context.Context, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("encode event %s: %v", event.ID, err)
		return
	}
	if err := b.client.Publish(ctx, topicKey(event.RoomCode), data).Err(); err != nil {
		log.Printf("publish %s to room %s: %v", event.Type, event.RoomCode, err)
	}
}

// Subscribe returns once Redis has confirmed the subscription, so no event
// published afterwards is missed. The channel closes on cancel, when ctx ends,
// or when the subscriber falls a full buffer behind.
func (b *Broker) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, topicKey(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe room %s: %w", code, err)
	}

	out := make(chan domain.Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("decode event on %s: %v", msg.Channel, err)
					continue
				}
				if !forward(out, event) {
					log.Printf("evicted slow subscriber of room %s", code)
					cancel()
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

// forward reports false when the subscriber's buffer is full.
func forward(out chan domain.Event, event domain.Event) bool {
	select {
	case out <- event:
		return true
	default:
		return false
	}
}
