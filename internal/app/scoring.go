package app

import (
	"context"
	"time"

	"quiz-room-service/internal/domain"
)

// SubmitAnswer scores a single answer. The first answer for a question stands.
func (s *RoomService) SubmitAnswer(ctx context.Context, code, userID, questionID, answerID string) (domain.Participant, error) {
	room, err := s.loadRoom(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if room.Status != domain.RoomInProgress || room.StartTime == nil {
		return domain.Participant{}, domain.ErrRoomNotInProgress
	}

	participant, err := s.store.Participant(ctx, code, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	if !participant.Active() {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if participant.Answered(questionID) {
		return domain.Participant{}, domain.ErrAlreadyAnswered
	}

	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return domain.Participant{}, err
	}
	correct, err := scoreSubmission(quiz, questionID, answerID)
	if err != nil {
		return domain.Participant{}, err
	}

	now := s.now()
	spent := int(now.Sub(*room.StartTime) / time.Second)
	if spent < 0 {
		spent = 0
	}

	// The store re-checks status and duplicates; the reads above only fail fast.
	updated, err := s.store.AppendAnswer(ctx, code, userID, domain.Answer{
		QuestionID:       questionID,
		AnswerID:         answerID,
		IsCorrect:        correct,
		TimeSpentSeconds: spent,
		SubmittedAt:      now,
	}, s.pointsPerCorrect)
	if err != nil {
		return domain.Participant{}, err
	}

	if roster, err := s.store.Participants(ctx, code); err == nil {
		s.publish(ctx, domain.EventAnswerProgress, code, domain.AnswerProgressPayload{
			Participants: domain.Summaries(roster),
		})
	}
	return updated, nil
}

// scoreSubmission validates the answer against quiz content and reports whether it is correct.
func scoreSubmission(quiz domain.Quiz, questionID, answerID string) (bool, error) {
	question, ok := quiz.Question(questionID)
	if !ok {
		return false, domain.ErrQuestionNotFound
	}

	known := false
	for _, opt := range question.Options {
		if opt.ID == answerID {
			known = true
			break
		}
	}
	if !known {
		return false, domain.ErrOptionNotFound
	}

	correctID, ok := question.CorrectOption()
	return ok && correctID == answerID, nil
}
