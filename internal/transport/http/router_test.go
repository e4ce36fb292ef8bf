package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

const testSecret = "test-secret"

type fixture struct {
	service *app.RoomService
	router  *gin.Engine
	issuer  *auth.Issuer
}

func newFixture(t *testing.T, opts app.Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(memory.SampleQuizzes()), time.Minute)
	service := app.NewRoomService(memory.NewSessionStore(), quizzes, memory.NewBroker(), opts)
	return &fixture{
		service: service,
		router:  NewRouter(service, auth.NewVerifier(testSecret, "quiz-rooms")),
		issuer:  auth.NewIssuer(testSecret, "quiz-rooms", time.Hour),
	}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.issuer.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code domain.Code) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decode[errorPayload](t, rec); got.Code != code {
		t.Fatalf("expected code %s, got %s", code, got.Code)
	}
}

func TestRESTRequiresToken(t *testing.T) {
	f := newFixture(t, app.Options{})

	rec := f.do(t, http.MethodGet, "/api/rooms", "", nil)
	expectError(t, rec, http.StatusUnauthorized, domain.CodeAuthenticationFailed)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	expectError(t, rec, http.StatusUnauthorized, domain.CodeAuthenticationFailed)
}

func TestRESTRoomFlow(t *testing.T) {
	f := newFixture(t, app.Options{})

	rec := f.do(t, http.MethodPost, "/api/rooms", "alice", map[string]any{
		"quizId": "quiz-1",
		"policy": map[string]any{"maxParticipants": 3, "isPublic": true},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create room: %d %s", rec.Code, rec.Body.String())
	}
	room := decode[domain.Room](t, rec)
	if room.HostID != "alice" || room.Status != domain.RoomWaiting || len(room.Code) != app.DefaultCodeLength {
		t.Fatalf("unexpected room %+v", room)
	}
	base := "/api/rooms/" + room.Code

	listed := decode[struct {
		Rooms []domain.Room `json:"rooms"`
	}](t, f.do(t, http.MethodGet, "/api/rooms", "bob", nil))
	if len(listed.Rooms) != 1 || listed.Rooms[0].Code != room.Code {
		t.Fatalf("expected public room listed, got %+v", listed.Rooms)
	}

	if rec := f.do(t, http.MethodPost, base+"/join", "bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("join: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, f.do(t, http.MethodPost, base+"/start", "bob", nil), http.StatusForbidden, domain.CodeNotHost)

	if rec := f.do(t, http.MethodPost, base+"/start", "alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, f.do(t, http.MethodPost, base+"/start", "alice", nil), http.StatusConflict, domain.CodeInvalidTransition)

	rec = f.do(t, http.MethodPost, base+"/answers", "bob", map[string]string{"questionId": "q1", "answerId": "o2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: %d %s", rec.Code, rec.Body.String())
	}
	if bob := decode[domain.Participant](t, rec); bob.Score != 10 || len(bob.Answers) != 1 {
		t.Fatalf("unexpected participant after answer %+v", bob)
	}
	expectError(t, f.do(t, http.MethodPost, base+"/answers", "bob", map[string]string{"questionId": "q1", "answerId": "o1"}),
		http.StatusConflict, domain.CodeAlreadyAnswered)
	expectError(t, f.do(t, http.MethodPost, base+"/answers", "bob", map[string]string{"questionId": "q9", "answerId": "o1"}),
		http.StatusBadRequest, domain.CodeQuestionNotFound)
	expectError(t, f.do(t, http.MethodPost, base+"/answers", "bob", map[string]string{"questionId": "q2"}),
		http.StatusBadRequest, codeInvalidRequest)

	rec = f.do(t, http.MethodPost, base+"/end", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: %d %s", rec.Code, rec.Body.String())
	}
	result := decode[struct {
		Room      domain.Room                 `json:"room"`
		Standings []domain.ParticipantSummary `json:"standings"`
	}](t, rec)
	if result.Room.Status != domain.RoomCompleted || len(result.Standings) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Standings[0].UserID != "bob" || result.Standings[0].Rank != 1 || result.Standings[1].Rank != 2 {
		t.Fatalf("unexpected standings %+v", result.Standings)
	}

	state := decode[domain.RoomState](t, f.do(t, http.MethodGet, base, "carol", nil))
	if state.Room.Status != domain.RoomCompleted || len(state.Participants) != 2 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	f := newFixture(t, app.Options{})

	expectError(t, f.do(t, http.MethodGet, "/api/rooms/NOPE00", "alice", nil), http.StatusNotFound, domain.CodeRoomNotFound)
	expectError(t, f.do(t, http.MethodPost, "/api/rooms", "alice", map[string]any{"quizId": "missing"}),
		http.StatusNotFound, domain.CodeQuizNotFound)
	expectError(t, f.do(t, http.MethodPost, "/api/rooms", "alice", map[string]any{}), http.StatusBadRequest, codeInvalidRequest)

	rec := f.do(t, http.MethodPost, "/api/rooms", "alice", map[string]any{
		"quizId": "quiz-1",
		"policy": map[string]any{"maxParticipants": 2},
	})
	room := decode[domain.Room](t, rec)
	base := "/api/rooms/" + room.Code

	if rec := f.do(t, http.MethodPost, base+"/join", "bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("join: %d", rec.Code)
	}
	expectError(t, f.do(t, http.MethodPost, base+"/join", "carol", nil), http.StatusConflict, domain.CodeRoomFull)
	expectError(t, f.do(t, http.MethodPost, base+"/leave", "alice", nil), http.StatusConflict, domain.CodeHostCannotLeave)
	expectError(t, f.do(t, http.MethodPost, base+"/answers", "bob", map[string]string{"questionId": "q1", "answerId": "o2"}),
		http.StatusConflict, domain.CodeRoomNotInProgress)
}

func TestRESTAcceptsLowercaseCodes(t *testing.T) {
	f := newFixture(t, app.Options{})
	room := decode[domain.Room](t, f.do(t, http.MethodPost, "/api/rooms", "alice", map[string]any{"quizId": "quiz-1"}))
	base := "/api/rooms/" + strings.ToLower(room.Code)

	if rec := f.do(t, http.MethodPost, base+"/join", "bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("join with lowercase code: %d %s", rec.Code, rec.Body.String())
	}
	state := decode[domain.RoomState](t, f.do(t, http.MethodGet, base, "bob", nil))
	if state.Room.Code != room.Code || len(state.Participants) != 2 {
		t.Fatalf("unexpected state %+v", state)
	}
	if rec := f.do(t, http.MethodPost, base+"/start", "alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("start with lowercase code: %d %s", rec.Code, rec.Body.String())
	}
}
