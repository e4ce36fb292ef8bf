package app

import (
	"context"
	"log"

	"quiz-room-service/internal/domain"
)

// publish builds and hands an event to the broker. Failures are logged only:
// the state change it reports has already been stored.
func (s *RoomService) publish(ctx context.Context, typ domain.EventType, code string, payload any) {
	if s.broker == nil {
		return
	}
	event, err := domain.NewEvent(typ, code, s.now(), payload)
	if err != nil {
		log.Printf("encode %s event for room %s: %v", typ, code, err)
		return
	}
	s.broker.Publish(ctx, event)
}
