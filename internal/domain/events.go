package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a message on a room's broadcast topic.
type EventType string

const (
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventRoomStarted       EventType = "room-started"
	EventAnswerProgress    EventType = "answer-progress"
	EventRoomEnded         EventType = "room-ended"
)

// Event is published to every connection subscribed to a room.
type Event struct {
	ID       string          `json:"id"`
	Type     EventType       `json:"type"`
	RoomCode string          `json:"roomCode"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload"`
}

// NewEvent encodes payload once so every transport forwards identical bytes.
func NewEvent(typ EventType, roomCode string, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		RoomCode: roomCode,
		At:       at,
		Payload:  raw,
	}, nil
}

type ParticipantJoinedPayload struct {
	Participant ParticipantSummary `json:"participant"`
	Count       int                `json:"count"`
}

// LeaveReason distinguishes explicit leaves from dropped connections.
type LeaveReason string

const (
	LeaveExplicit     LeaveReason = "left"
	LeaveDisconnected LeaveReason = "disconnected"
)

type ParticipantLeftPayload struct {
	UserID string      `json:"userId"`
	Reason LeaveReason `json:"reason"`
	Count  int         `json:"count"`
}

type RoomStartedPayload struct {
	Room             Room         `json:"room"`
	Quiz             PlayableQuiz `json:"quiz"`
	StartTime        time.Time    `json:"startTime"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
}

// AnswerProgressPayload never carries individual answers.
type AnswerProgressPayload struct {
	Participants []ParticipantSummary `json:"participants"`
}

type RoomEndedPayload struct {
	Room      Room                 `json:"room"`
	Standings []ParticipantSummary `json:"standings"`
}
