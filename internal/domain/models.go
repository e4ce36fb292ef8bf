package domain

import (
	"fmt"
	"time"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomInProgress RoomStatus = "in_progress"
	RoomCompleted  RoomStatus = "completed"
	RoomExpired    RoomStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s RoomStatus) Terminal() bool {
	return s == RoomCompleted || s == RoomExpired
}

// CanTransition reports whether from -> to is an edge of the room state machine.
func CanTransition(from, to RoomStatus) bool {
	switch from {
	case RoomWaiting:
		return to == RoomInProgress || to == RoomExpired
	case RoomInProgress:
		return to == RoomCompleted
	}
	return false
}

// ParticipantStatus tracks a participant through a room.
type ParticipantStatus string

const (
	ParticipantJoined    ParticipantStatus = "joined"
	ParticipantReady     ParticipantStatus = "ready"
	ParticipantPlaying   ParticipantStatus = "playing"
	ParticipantCompleted ParticipantStatus = "completed"
	ParticipantLeft      ParticipantStatus = "left"
)

// Policy holds the session settings fixed at room creation.
type Policy struct {
	MaxParticipants  int  `json:"maxParticipants"`
	TimeLimitSeconds int  `json:"timeLimitSeconds"`
	IsPublic         bool `json:"isPublic"`
}

// Room is a bounded session binding one quiz to a group of participants.
type Room struct {
	Code      string     `json:"code"`
	HostID    string     `json:"hostId"`
	QuizID    string     `json:"quizId"`
	Status    RoomStatus `json:"status"`
	Policy    Policy     `json:"policy"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// DueForExpiry reports whether an unstarted room has outlived its deadline.
func (r Room) DueForExpiry(now time.Time) bool {
	return r.Status == RoomWaiting && now.After(r.ExpiresAt)
}

// Answer is one scored submission. A participant holds at most one per question.
type Answer struct {
	QuestionID       string    `json:"questionId"`
	AnswerID         string    `json:"answerId"`
	IsCorrect        bool      `json:"isCorrect"`
	TimeSpentSeconds int       `json:"timeSpentSeconds"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// Participant is a user's membership and progress record within one room.
type Participant struct {
	RoomCode string            `json:"roomCode"`
	UserID   string            `json:"userId"`
	Status   ParticipantStatus `json:"status"`
	Score    int               `json:"score"`
	Rank     int               `json:"rank,omitempty"` // 0 until the room completes
	Seq      int               `json:"seq"`            // join order within the room
	JoinedAt time.Time         `json:"joinedAt"`
	Answers  []Answer          `json:"answers"`
}

// Answered reports whether the participant already has an answer for questionID.
func (p Participant) Answered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Active reports whether the participant counts against room capacity.
func (p Participant) Active() bool {
	return p.Status != ParticipantLeft
}

// ParticipantSummary is the public view of a participant. It never includes answer ids.
type ParticipantSummary struct {
	UserID        string            `json:"userId"`
	Status        ParticipantStatus `json:"status"`
	Score         int               `json:"score"`
	Rank          int               `json:"rank,omitempty"`
	AnsweredCount int               `json:"answeredCount"`
	JoinedAt      time.Time         `json:"joinedAt"`
}

func (p Participant) Summary() ParticipantSummary {
	return ParticipantSummary{
		UserID:        p.UserID,
		Status:        p.Status,
		Score:         p.Score,
		Rank:          p.Rank,
		AnsweredCount: len(p.Answers),
		JoinedAt:      p.JoinedAt,
	}
}

// Summaries maps participants to their public view, keeping order.
func Summaries(participants []Participant) []ParticipantSummary {
	out := make([]ParticipantSummary, 0, len(participants))
	for _, p := range participants {
		out = append(out, p.Summary())
	}
	return out
}

// RoomState is a room together with its participants, ordered by join.
type RoomState struct {
	Room         Room                 `json:"room"`
	Participants []ParticipantSummary `json:"participants"`
}

// RoomResult is the final outcome of a completed room.
type RoomResult struct {
	Room      Room          `json:"room"`
	Standings []Participant `json:"standings"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
}

// CorrectOption returns the id of the first option flagged correct.
func (q Question) CorrectOption() (string, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID, true
		}
	}
	return "", false
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question looks up a question by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Validate checks that the quiz is usable in a room: every question has a
// unique id, at least two options and exactly one correct option.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quiz without id")
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %s has no questions", q.ID)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("quiz %s: question without id", q.ID)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("quiz %s: duplicate question %s", q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}

		if len(question.Options) < 2 {
			return fmt.Errorf("quiz %s: question %s needs at least two options", q.ID, question.ID)
		}
		correct := 0
		for _, opt := range question.Options {
			if opt.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("quiz %s: question %s has %d correct options", q.ID, question.ID, correct)
		}
	}
	return nil
}

// PlayableOption is an option stripped of its correctness flag.
type PlayableOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type PlayableQuestion struct {
	ID      string           `json:"id"`
	Prompt  string           `json:"prompt"`
	Options []PlayableOption `json:"options"`
}

// PlayableQuiz is the content sent to players when a room starts.
type PlayableQuiz struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Questions []PlayableQuestion `json:"questions"`
}

// Playable hides which options are correct.
func (q Quiz) Playable() PlayableQuiz {
	out := PlayableQuiz{ID: q.ID, Title: q.Title, Questions: make([]PlayableQuestion, 0, len(q.Questions))}
	for _, question := range q.Questions {
		pq := PlayableQuestion{ID: question.ID, Prompt: question.Prompt, Options: make([]PlayableOption, 0, len(question.Options))}
		for _, opt := range question.Options {
			pq.Options = append(pq.Options, PlayableOption{ID: opt.ID, Text: opt.Text})
		}
		out.Questions = append(out.Questions, pq)
	}
	return out
}
