package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quiz-room-service/internal/domain"
)

// SessionStore abstracts where rooms and participants live (in-memory, Redis).
// Every method is a single atomic step against the store; callers never hold
// locks across calls.
type SessionStore interface {
	// CreateRoom persists room with host as its first participant. It fails
	// with domain.ErrCodeTaken when the code belongs to a live room.
	CreateRoom(ctx context.Context, room domain.Room, host domain.Participant) error
	GetRoom(ctx context.Context, code string) (domain.Room, error)
	// ListOpenRooms returns public rooms whose stored status is waiting.
	ListOpenRooms(ctx context.Context) ([]domain.Room, error)
	// Participants returns the roster ordered by join sequence.
	Participants(ctx context.Context, code string) ([]domain.Participant, error)
	Participant(ctx context.Context, code, userID string) (domain.Participant, error)
	// AddParticipant checks status, expiry, membership and capacity and inserts
	// in one step. created is false when the user was already an active member.
	AddParticipant(ctx context.Context, code string, p domain.Participant) (joined domain.Participant, created bool, err error)
	// Transition applies a compare-and-set on the room status.
	Transition(ctx context.Context, code string, t Transition) (domain.Room, error)
	// AppendAnswer stores answer if the room is in progress and the question is
	// unanswered, adding reward to the score when the answer is correct.
	AppendAnswer(ctx context.Context, code, userID string, answer domain.Answer, reward int) (domain.Participant, error)
	MarkLeft(ctx context.Context, code, userID string) (domain.Participant, error)
	SaveRanks(ctx context.Context, code string, ranks map[string]int) error
}

// Transition describes a guarded status change.
type Transition struct {
	From domain.RoomStatus
	To   domain.RoomStatus
	At   time.Time
	// Participants, when set, is applied to every participant that has not left.
	Participants domain.ParticipantStatus
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Broker is the per-room broadcast topic.
type Broker interface {
	// Publish is fire-and-forget; it must not wait on subscriber delivery.
	Publish(ctx context.Context, event domain.Event)
	// Subscribe returns a channel of events for a room. The caller must invoke
	// the returned cancel function to avoid leaks. A subscriber that falls a
	// full buffer behind is evicted: its channel closes without cancel, and the
	// caller must re-subscribe and re-read room state to catch up.
	Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error)
}

// ResultSink receives the outcome of every completed room.
type ResultSink interface {
	PublishResult(ctx context.Context, result domain.RoomResult) error
}

// Options tunes room policy defaults.
type Options struct {
	RoomTTL                time.Duration
	DefaultMaxParticipants int
	MinParticipants        int
	PointsPerCorrect       int
	Codes                  CodeGenerator
	Results                ResultSink
	Clock                  func() time.Time
}

const maxCodeAttempts = 10

// RoomService coordinates room lifecycle, scoring and ranking.
type RoomService struct {
	store   SessionStore
	quizzes QuizRepository
	broker  Broker
	results ResultSink
	codes   CodeGenerator
	now     func() time.Time

	roomTTL          time.Duration
	defaultMax       int
	minParticipants  int
	pointsPerCorrect int
}

func NewRoomService(store SessionStore, quizzes QuizRepository, broker Broker, opts Options) *RoomService {
	s := &RoomService{
		store:            store,
		quizzes:          quizzes,
		broker:           broker,
		results:          opts.Results,
		codes:            opts.Codes,
		now:              opts.Clock,
		roomTTL:          opts.RoomTTL,
		defaultMax:       opts.DefaultMaxParticipants,
		minParticipants:  opts.MinParticipants,
		pointsPerCorrect: opts.PointsPerCorrect,
	}
	if s.codes == nil {
		s.codes = NewCodeGenerator(DefaultCodeLength)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.roomTTL <= 0 {
		s.roomTTL = 10 * time.Minute
	}
	if s.defaultMax <= 0 {
		s.defaultMax = 10
	}
	if s.minParticipants <= 0 {
		s.minParticipants = 2
	}
	if s.pointsPerCorrect <= 0 {
		s.pointsPerCorrect = 10
	}
	return s
}

// CreateRoom opens a waiting room for quizID with hostID auto-joined as ready.
func (s *RoomService) CreateRoom(ctx context.Context, hostID, quizID string, policy domain.Policy) (domain.Room, error) {
	if policy.MaxParticipants == 0 {
		policy.MaxParticipants = s.defaultMax
	}
	if policy.MaxParticipants < 1 || policy.TimeLimitSeconds < 0 {
		return domain.Room{}, domain.ErrInvalidPolicy
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Room{}, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.NewCode()
		if err != nil {
			return domain.Room{}, fmt.Errorf("generate room code: %w", err)
		}
		now := s.now()
		room := domain.Room{
			Code:      code,
			HostID:    hostID,
			QuizID:    quizID,
			Status:    domain.RoomWaiting,
			Policy:    policy,
			CreatedAt: now,
			ExpiresAt: now.Add(s.roomTTL),
		}
		host := domain.Participant{
			RoomCode: code,
			UserID:   hostID,
			Status:   domain.ParticipantReady,
			Seq:      1,
			JoinedAt: now,
			Answers:  []domain.Answer{},
		}
		err = s.store.CreateRoom(ctx, room, host)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}
		log.Printf("room %s created by %s for quiz %s", code, hostID, quizID)
		return room, nil
	}
	return domain.Room{}, domain.ErrCodeGenerationFailed
}

// JoinRoom adds userID to a waiting room. Joining twice returns the existing participant.
func (s *RoomService) JoinRoom(ctx context.Context, code, userID string) (domain.Participant, error) {
	room, err := s.loadRoom(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if room.Status != domain.RoomWaiting {
		return domain.Participant{}, domain.ErrRoomNotJoinable
	}

	participant, created, err := s.store.AddParticipant(ctx, code, domain.Participant{
		RoomCode: code,
		UserID:   userID,
		Status:   domain.ParticipantJoined,
		JoinedAt: s.now(),
		Answers:  []domain.Answer{},
	})
	if err != nil {
		return domain.Participant{}, err
	}
	if !created {
		return participant, nil
	}

	log.Printf("user %s joined room %s", userID, code)
	if roster, err := s.store.Participants(ctx, code); err == nil {
		s.publish(ctx, domain.EventParticipantJoined, code, domain.ParticipantJoinedPayload{
			Participant: participant.Summary(),
			Count:       countActive(roster),
		})
	}
	return participant, nil
}

// StartRoom moves a waiting room to in_progress and hands every client the quiz.
func (s *RoomService) StartRoom(ctx context.Context, code, callerID string) (domain.Room, error) {
	room, err := s.loadRoom(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	if room.HostID != callerID {
		return domain.Room{}, domain.ErrNotHost
	}
	if room.Status != domain.RoomWaiting {
		return domain.Room{}, domain.ErrInvalidTransition
	}

	roster, err := s.store.Participants(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	if countActive(roster) < s.minParticipants {
		return domain.Room{}, domain.ErrNotEnoughParticipants
	}

	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return domain.Room{}, err
	}

	started, err := s.store.Transition(ctx, code, Transition{
		From:         domain.RoomWaiting,
		To:           domain.RoomInProgress,
		At:           s.now(),
		Participants: domain.ParticipantPlaying,
	})
	if err != nil {
		return domain.Room{}, err
	}

	log.Printf("room %s started by %s", code, callerID)
	s.publish(ctx, domain.EventRoomStarted, code, domain.RoomStartedPayload{
		Room:             started,
		Quiz:             quiz.Playable(),
		StartTime:        *started.StartTime,
		TimeLimitSeconds: started.Policy.TimeLimitSeconds,
	})
	return started, nil
}

// EndRoom completes an in-progress room and ranks its participants. Ranking
// runs after the status change, once no more answers can land; if it fails,
// calling EndRoom again on the completed room finishes the job.
func (s *RoomService) EndRoom(ctx context.Context, code, callerID string) (domain.RoomResult, error) {
	room, err := s.loadRoom(ctx, code)
	if err != nil {
		return domain.RoomResult{}, err
	}
	if room.HostID != callerID {
		return domain.RoomResult{}, domain.ErrNotHost
	}

	switch room.Status {
	case domain.RoomInProgress:
		room, err = s.store.Transition(ctx, code, Transition{
			From:         domain.RoomInProgress,
			To:           domain.RoomCompleted,
			At:           s.now(),
			Participants: domain.ParticipantCompleted,
		})
		if err != nil {
			return domain.RoomResult{}, err
		}
	case domain.RoomCompleted:
		roster, err := s.store.Participants(ctx, code)
		if err != nil {
			return domain.RoomResult{}, err
		}
		if !unranked(roster) {
			return domain.RoomResult{}, domain.ErrInvalidTransition
		}
		log.Printf("room %s completed without ranks, ranking again", code)
	default:
		return domain.RoomResult{}, domain.ErrInvalidTransition
	}

	standings, err := s.rankRoom(ctx, code)
	if err != nil {
		return domain.RoomResult{}, fmt.Errorf("rank room %s: %w", code, err)
	}

	log.Printf("room %s ended by %s with %d participants", code, callerID, len(standings))
	result := domain.RoomResult{Room: room, Standings: standings}
	s.publish(ctx, domain.EventRoomEnded, code, domain.RoomEndedPayload{
		Room:      room,
		Standings: domain.Summaries(standings),
	})
	if s.results != nil {
		if err := s.results.PublishResult(ctx, result); err != nil {
			log.Printf("publish result for room %s: %v", code, err)
		}
	}
	return result, nil
}

// unranked reports whether ranks were never written for the roster.
func unranked(roster []domain.Participant) bool {
	for _, p := range roster {
		if p.Rank == 0 {
			return true
		}
	}
	return false
}

// LeaveRoom marks a non-host participant as left. History is kept.
func (s *RoomService) LeaveRoom(ctx context.Context, code, userID string) (domain.Participant, error) {
	room, err := s.loadRoom(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if room.Status.Terminal() {
		return domain.Participant{}, domain.ErrInvalidTransition
	}
	if room.HostID == userID {
		return domain.Participant{}, domain.ErrHostCannotLeave
	}

	participant, err := s.store.MarkLeft(ctx, code, userID)
	if err != nil {
		return domain.Participant{}, err
	}

	log.Printf("user %s left room %s", userID, code)
	if roster, err := s.store.Participants(ctx, code); err == nil {
		s.publish(ctx, domain.EventParticipantLeft, code, domain.ParticipantLeftPayload{
			UserID: userID,
			Reason: domain.LeaveExplicit,
			Count:  countActive(roster),
		})
	}
	return participant, nil
}

// NotifyDisconnected tells a waiting room that userID dropped its connection.
// Participant records are not touched.
func (s *RoomService) NotifyDisconnected(ctx context.Context, code, userID string) {
	room, err := s.loadRoom(ctx, code)
	if err != nil || room.Status != domain.RoomWaiting {
		return
	}
	roster, err := s.store.Participants(ctx, code)
	if err != nil {
		return
	}
	s.publish(ctx, domain.EventParticipantLeft, code, domain.ParticipantLeftPayload{
		UserID: userID,
		Reason: domain.LeaveDisconnected,
		Count:  countActive(roster),
	})
}

// GetRoomStatus returns the room and its participant summaries.
func (s *RoomService) GetRoomStatus(ctx context.Context, code string) (domain.RoomState, error) {
	room, err := s.loadRoom(ctx, code)
	if err != nil {
		return domain.RoomState{}, err
	}
	roster, err := s.store.Participants(ctx, code)
	if err != nil {
		return domain.RoomState{}, err
	}
	return domain.RoomState{Room: room, Participants: domain.Summaries(roster)}, nil
}

// ListOpenRooms returns joinable public rooms, expiring stale ones on the way.
func (s *RoomService) ListOpenRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.store.ListOpenRooms(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]domain.Room, 0, len(rooms))
	for _, room := range rooms {
		room, err := s.ExpireIfDue(ctx, room)
		if err != nil {
			return nil, err
		}
		if room.Status == domain.RoomWaiting {
			open = append(open, room)
		}
	}
	return open, nil
}

// Subscribe attaches to the room's broadcast topic.
func (s *RoomService) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	if _, err := s.store.GetRoom(ctx, code); err != nil {
		return nil, nil, err
	}
	return s.broker.Subscribe(ctx, code)
}

// ExpireIfDue lazily moves a stale waiting room to expired. It runs on every read.
func (s *RoomService) ExpireIfDue(ctx context.Context, room domain.Room) (domain.Room, error) {
	now := s.now()
	if !room.DueForExpiry(now) {
		return room, nil
	}
	expired, err := s.store.Transition(ctx, room.Code, Transition{
		From: domain.RoomWaiting,
		To:   domain.RoomExpired,
		At:   now,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Someone else moved the room first; report what they stored.
		return s.store.GetRoom(ctx, room.Code)
	}
	if err != nil {
		return domain.Room{}, err
	}
	log.Printf("room %s expired", room.Code)
	return expired, nil
}

func (s *RoomService) loadRoom(ctx context.Context, code string) (domain.Room, error) {
	room, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	return s.ExpireIfDue(ctx, room)
}

func countActive(roster []domain.Participant) int {
	n := 0
	for _, p := range roster {
		if p.Active() {
			n++
		}
	}
	return n
}
