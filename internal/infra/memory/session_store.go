package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore for a
// single instance. The map lock is only held to find a room; each room has
// its own lock so rooms never contend.
type SessionStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomRecord
}

type roomRecord struct {
	mu      sync.Mutex
	room    domain.Room
	members map[string]*domain.Participant
	seq     int
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		rooms: make(map[string]*roomRecord),
	}
}

func (s *SessionStore) CreateRoom(_ context.Context, room domain.Room, host domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rooms[room.Code]; ok {
		existing.mu.Lock()
		live := liveRoom(existing.room, host)
		existing.mu.Unlock()
		if live {
			return domain.ErrCodeTaken
		}
	}

	host.Seq = 1
	host.Answers = []domain.Answer{}
	s.rooms[room.Code] = &roomRecord{
		room:    room,
		members: map[string]*domain.Participant{host.UserID: &host},
		seq:     1,
	}
	return nil
}

// liveRoom reports whether a stored room still owns its code at the time host joined.
func liveRoom(room domain.Room, host domain.Participant) bool {
	switch room.Status {
	case domain.RoomInProgress:
		return true
	case domain.RoomWaiting:
		return !room.DueForExpiry(host.JoinedAt)
	}
	return false
}

func (s *SessionStore) GetRoom(_ context.Context, code string) (domain.Room, error) {
	rec, ok := s.record(code)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.room, nil
}

func (s *SessionStore) ListOpenRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	records := make([]*roomRecord, 0, len(s.rooms))
	for _, rec := range s.rooms {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	rooms := make([]domain.Room, 0)
	for _, rec := range records {
		rec.mu.Lock()
		if rec.room.Status == domain.RoomWaiting && rec.room.Policy.IsPublic {
			rooms = append(rooms, rec.room)
		}
		rec.mu.Unlock()
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *SessionStore) Participants(_ context.Context, code string) ([]domain.Participant, error) {
	rec, ok := s.record(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.rosterLocked(), nil
}

func (s *SessionStore) Participant(_ context.Context, code, userID string) (domain.Participant, error) {
	rec, ok := s.record(code)
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	p, ok := rec.members[userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return clone(p), nil
}

func (s *SessionStore) AddParticipant(_ context.Context, code string, p domain.Participant) (domain.Participant, bool, error) {
	rec, ok := s.record(code)
	if !ok {
		return domain.Participant{}, false, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.room.Status != domain.RoomWaiting || rec.room.DueForExpiry(p.JoinedAt) {
		return domain.Participant{}, false, domain.ErrRoomNotJoinable
	}

	existing, member := rec.members[p.UserID]
	if member && existing.Active() {
		return clone(existing), false, nil
	}
	if rec.activeLocked() >= rec.room.Policy.MaxParticipants {
		return domain.Participant{}, false, domain.ErrRoomFull
	}

	if member {
		// A left user comes back with the original join order and history.
		existing.Status = p.Status
		return clone(existing), true, nil
	}

	rec.seq++
	p.RoomCode = code
	p.Seq = rec.seq
	p.Answers = []domain.Answer{}
	rec.members[p.UserID] = &p
	return clone(&p), true, nil
}

func (s *SessionStore) Transition(_ context.Context, code string, t app.Transition) (domain.Room, error) {
	rec, ok := s.record(code)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.room.Status != t.From || !domain.CanTransition(t.From, t.To) {
		return domain.Room{}, domain.ErrInvalidTransition
	}

	at := t.At
	rec.room.Status = t.To
	switch t.To {
	case domain.RoomInProgress:
		rec.room.StartTime = &at
	case domain.RoomCompleted:
		rec.room.EndTime = &at
	}
	if t.Participants != "" {
		for _, p := range rec.members {
			if p.Active() {
				p.Status = t.Participants
			}
		}
	}
	return rec.room, nil
}

func (s *SessionStore) AppendAnswer(_ context.Context, code, userID string, answer domain.Answer, reward int) (domain.Participant, error) {
	rec, ok := s.record(code)
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.room.Status != domain.RoomInProgress {
		return domain.Participant{}, domain.ErrRoomNotInProgress
	}
	p, ok := rec.members[userID]
	if !ok || !p.Active() {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if p.Answered(answer.QuestionID) {
		return domain.Participant{}, domain.ErrAlreadyAnswered
	}

	p.Answers = append(p.Answers, answer)
	if answer.IsCorrect {
		p.Score += reward
	}
	return clone(p), nil
}

func (s *SessionStore) MarkLeft(_ context.Context, code, userID string) (domain.Participant, error) {
	rec, ok := s.record(code)
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	p, ok := rec.members[userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	p.Status = domain.ParticipantLeft
	return clone(p), nil
}

func (s *SessionStore) SaveRanks(_ context.Context, code string, ranks map[string]int) error {
	rec, ok := s.record(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	for userID, rank := range ranks {
		if p, ok := rec.members[userID]; ok {
			p.Rank = rank
		}
	}
	return nil
}

func (s *SessionStore) record(code string) (*roomRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rooms[code]
	return rec, ok
}

func (r *roomRecord) rosterLocked() []domain.Participant {
	roster := make([]domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		roster = append(roster, clone(p))
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].Seq < roster[j].Seq })
	return roster
}

func (r *roomRecord) activeLocked() int {
	n := 0
	for _, p := range r.members {
		if p.Active() {
			n++
		}
	}
	return n
}

// clone copies a participant so callers never share the answers slice.
func clone(p *domain.Participant) domain.Participant {
	out := *p
	out.Answers = append([]domain.Answer(nil), p.Answers...)
	if out.Answers == nil {
		out.Answers = []domain.Answer{}
	}
	return out
}
