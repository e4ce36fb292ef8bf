package postgres

import (
	"strings"
	"testing"

	"quiz-room-service/internal/domain"
)

func TestDecodeQuizDefaultsID(t *testing.T) {
	raw := `{"title":"Geo","questions":[{"id":"q1","prompt":"Capital of France?","options":[{"id":"a","text":"Paris","correct":true},{"id":"b","text":"Lyon"}]}]}`
	quiz, err := decodeQuiz("quiz-geo", []byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if quiz.ID != "quiz-geo" || len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
}

func TestDecodeQuizRejectsUnplayableRows(t *testing.T) {
	cases := map[string]string{
		"no correct option": `{"id":"q","questions":[{"id":"q1","options":[{"id":"a"},{"id":"b"}]}]}`,
		"no questions":      `{"id":"q","questions":[]}`,
		"broken json":       `{"id":`,
	}
	for name, raw := range cases {
		_, err := decodeQuiz("q", []byte(raw))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if domain.KindOf(err) != domain.KindInternal {
			t.Fatalf("%s: expected internal error, got %v", name, domain.KindOf(err))
		}
	}
	_, err := decodeQuiz("q", []byte(cases["no correct option"]))
	if !strings.Contains(err.Error(), "correct options") {
		t.Fatalf("expected validation message, got %v", err)
	}
}
