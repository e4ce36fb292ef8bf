package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("join room ABC123: %w", ErrRoomFull)

	if !errors.Is(wrapped, ErrRoomFull) {
		t.Fatalf("expected errors.Is to match ErrRoomFull")
	}
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict kind, got %s", KindOf(wrapped))
	}
	if CodeOf(wrapped) != CodeRoomFull {
		t.Fatalf("expected ROOM_FULL, got %s", CodeOf(wrapped))
	}
}

func TestUnclassifiedErrorsAreInternal(t *testing.T) {
	err := errors.New("connection reset")
	if KindOf(err) != KindInternal || CodeOf(err) != CodeInternal {
		t.Fatalf("expected internal classification, got %s/%s", KindOf(err), CodeOf(err))
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]RoomStatus]bool{
		{RoomWaiting, RoomInProgress}:   true,
		{RoomWaiting, RoomExpired}:      true,
		{RoomInProgress, RoomCompleted}: true,
	}
	statuses := []RoomStatus{RoomWaiting, RoomInProgress, RoomCompleted, RoomExpired}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]RoomStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestPlayableHidesCorrectOptions(t *testing.T) {
	quiz := Quiz{ID: "quiz-1", Questions: []Question{{
		ID:      "q1",
		Prompt:  "What is 2 + 2?",
		Options: []Option{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4", Correct: true}},
	}}}

	playable := quiz.Playable()
	if len(playable.Questions) != 1 || len(playable.Questions[0].Options) != 2 {
		t.Fatalf("unexpected playable shape: %+v", playable)
	}
	if id, ok := quiz.Questions[0].CorrectOption(); !ok || id != "o2" {
		t.Fatalf("expected o2 as correct option, got %q", id)
	}
}

func TestQuizValidate(t *testing.T) {
	valid := Quiz{ID: "quiz-1", Questions: []Question{{
		ID:      "q1",
		Options: []Option{{ID: "o1"}, {ID: "o2", Correct: true}},
	}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid quiz, got %v", err)
	}

	cases := map[string]Quiz{
		"no id":        {Questions: valid.Questions},
		"no questions": {ID: "quiz-1"},
		"two correct": {ID: "quiz-1", Questions: []Question{{
			ID: "q1", Options: []Option{{ID: "o1", Correct: true}, {ID: "o2", Correct: true}},
		}}},
		"one option": {ID: "quiz-1", Questions: []Question{{
			ID: "q1", Options: []Option{{ID: "o1", Correct: true}},
		}}},
		"duplicate question": {ID: "quiz-1", Questions: append(append([]Question{}, valid.Questions...), valid.Questions...)},
	}
	for name, quiz := range cases {
		if err := quiz.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
