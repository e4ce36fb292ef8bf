package memory

import (
	"context"
	"log"
	"sync"

	"quiz-room-service/internal/domain"
)

const subscriberBuffer = 16

// Broker fans room events out to in-process subscribers. It only reaches
// connections on this instance; use the Redis broker when running several.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[chan domain.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[chan domain.Event]struct{}),
	}
}

func (b *Broker) Subscribe(_ context.Context, code string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, subscriberBuffer)

	b.mu.Lock()
	if b.topics[code] == nil {
		b.topics[code] = make(map[chan domain.Event]struct{})
	}
	b.topics[code][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[code]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.topics, code)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Publish never blocks. A subscriber whose buffer is full is evicted and its
// channel closed, so it learns it missed events instead of silently losing them.
func (b *Broker) Publish(_ context.Context, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[event.RoomCode]
	for ch := range subs {
		select {
		case ch <- event:
		default:
			delete(subs, ch)
			close(ch)
			log.Printf("evicted slow subscriber of room %s", event.RoomCode)
		}
	}
	if subs != nil && len(subs) == 0 {
		delete(b.topics, event.RoomCode)
	}
}

// Subscribers reports how many channels listen on a room.
func (b *Broker) Subscribers(code string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[code])
}
