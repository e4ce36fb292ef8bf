package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// WSHandler is the session gateway: one authenticated websocket per user,
// subscribed to at most one room topic at a time.
type WSHandler struct {
	service  *app.RoomService
	authn    Authenticator
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService, authn Authenticator) *WSHandler {
	return &WSHandler{
		service: service,
		authn:   authn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Code string `json:"code"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload,omitempty"`
}

// ServeWS authenticates before upgrading, so a bad token never gets a socket.
// The token comes from the Authorization header or the token query parameter.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFor(err))
		_ = json.NewEncoder(w).Encode(payloadFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := &wsSession{
		id:         uuid.NewString(),
		userID:     userID,
		service:    h.service,
		conn:       conn,
		send:       make(chan outboundMessage[any], sendBuffer),
		writerDone: make(chan struct{}),
	}
	log.Printf("ws %s opened for user %s", session.id, userID)
	session.run(r.Context())
	log.Printf("ws %s closed for user %s", session.id, userID)
}

func (h *WSHandler) authenticate(r *http.Request) (string, error) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", domain.ErrAuthenticationFailed
	}
	return h.authn.Verify(token)
}

type wsSession struct {
	id      string
	userID  string
	service *app.RoomService
	conn    *websocket.Conn

	send       chan outboundMessage[any]
	writerDone chan struct{}

	// Only the read loop touches these.
	room        string
	unsubscribe func()
}

func (s *wsSession) run(ctx context.Context) {
	go s.writeLoop()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("ws %s read error: %v", s.id, err)
			}
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			s.replyError(codeInvalidMessage, "invalid message format")
			continue
		}
		s.handle(ctx, inbound)
	}

	// An abrupt disconnect only informs the room; the participant record stays.
	if s.room != "" {
		s.service.NotifyDisconnected(ctx, s.room, s.userID)
	}
	s.detach()
	close(s.send)
	<-s.writerDone
}

func (s *wsSession) handle(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Code == "" {
			s.replyError(codeInvalidMessage, "invalid join payload")
			return
		}
		s.join(ctx, strings.ToUpper(payload.Code))
	case "leave":
		s.leave(ctx)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.QuestionID == "" || payload.AnswerID == "" {
			s.replyError(codeInvalidMessage, "invalid answer payload")
			return
		}
		if !s.inRoom() {
			return
		}
		participant, err := s.service.SubmitAnswer(ctx, s.room, s.userID, payload.QuestionID, payload.AnswerID)
		if err != nil {
			s.fail(err)
			return
		}
		s.reply(outboundMessage[any]{Type: "answer-result", Payload: participant})
	case "start":
		if !s.inRoom() {
			return
		}
		if _, err := s.service.StartRoom(ctx, s.room, s.userID); err != nil {
			s.fail(err)
		}
	case "end":
		if !s.inRoom() {
			return
		}
		if _, err := s.service.EndRoom(ctx, s.room, s.userID); err != nil {
			s.fail(err)
		}
	case "ping":
		s.reply(outboundMessage[any]{Type: "pong"})
	default:
		s.replyError(codeInvalidMessage, "unsupported message type")
	}
}

// join admits the user and subscribes to the room, then sends the current
// state. A participant of a running room is re-subscribed without re-joining,
// which is how a reconnecting client catches up.
func (s *wsSession) join(ctx context.Context, code string) {
	state, err := s.service.GetRoomStatus(ctx, code)
	if err != nil {
		s.fail(err)
		return
	}
	if s.room != "" && s.room != code {
		if err := s.switchFrom(ctx, s.room); err != nil {
			s.fail(err)
			return
		}
	}
	if !resuming(state, s.userID) {
		if _, err := s.service.JoinRoom(ctx, code, s.userID); err != nil {
			s.fail(err)
			return
		}
	}

	if s.room != code {
		s.detach()
		if err := s.attach(ctx, code); err != nil {
			s.fail(err)
			return
		}
	}

	// Read again after subscribing so no event falls between state and stream.
	state, err = s.service.GetRoomStatus(ctx, code)
	if err != nil {
		s.fail(err)
		return
	}
	s.reply(outboundMessage[any]{Type: "room-state", Payload: state})
}

// switchFrom releases the seat held in the current room before joining
// another one. Only a waiting room has a seat to give back; the host of a
// waiting room cannot leave it, so the switch is refused.
func (s *wsSession) switchFrom(ctx context.Context, code string) error {
	current, err := s.service.GetRoomStatus(ctx, code)
	if err == nil && current.Room.Status == domain.RoomWaiting {
		if _, err := s.service.LeaveRoom(ctx, code, s.userID); err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
			return err
		}
	}
	s.detach()
	return nil
}

func resuming(state domain.RoomState, userID string) bool {
	if state.Room.Status != domain.RoomInProgress {
		return false
	}
	for _, p := range state.Participants {
		if p.UserID == userID {
			return p.Status != domain.ParticipantLeft
		}
	}
	return false
}

func (s *wsSession) leave(ctx context.Context) {
	if !s.inRoom() {
		return
	}
	participant, err := s.service.LeaveRoom(ctx, s.room, s.userID)
	if err != nil {
		s.fail(err)
		return
	}
	s.detach()
	s.reply(outboundMessage[any]{Type: "left", Payload: participant.Summary()})
}

// attach starts forwarding the room's events into the send queue. If the
// broker evicts the subscription for lagging, the pump subscribes again and
// sends a fresh room-state so the client catches up on what it missed.
func (s *wsSession) attach(ctx context.Context, code string) error {
	events, cancel, err := s.service.Subscribe(ctx, code)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { cancel() }()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					cancel()
					events, cancel, ok = s.resync(ctx, code, stop)
					if !ok {
						return
					}
					continue
				}
				if !s.push(outboundMessage[any]{Type: string(event.Type), Payload: event.Payload}, stop) {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	s.room = code
	s.unsubscribe = func() {
		close(stop)
		<-done
	}
	return nil
}

// resync replaces an evicted subscription. Subscribing before reading state
// means nothing published in between is lost.
func (s *wsSession) resync(ctx context.Context, code string, stop <-chan struct{}) (<-chan domain.Event, func(), bool) {
	select {
	case <-stop:
		return nil, func() {}, false
	default:
	}
	log.Printf("ws %s lagged behind room %s, resyncing", s.id, code)

	events, cancel, err := s.service.Subscribe(ctx, code)
	if err != nil {
		s.push(outboundMessage[any]{Type: "error", Payload: payloadFor(err)}, stop)
		return nil, func() {}, false
	}
	state, err := s.service.GetRoomStatus(ctx, code)
	if err != nil {
		cancel()
		s.push(outboundMessage[any]{Type: "error", Payload: payloadFor(err)}, stop)
		return nil, func() {}, false
	}
	if !s.push(outboundMessage[any]{Type: "room-state", Payload: state}, stop) {
		cancel()
		return nil, func() {}, false
	}
	return events, cancel, true
}

// push queues msg for the writer unless the pump is stopping.
func (s *wsSession) push(msg outboundMessage[any], stop <-chan struct{}) bool {
	select {
	case s.send <- msg:
		return true
	case <-stop:
		return false
	case <-s.writerDone:
		return false
	}
}

func (s *wsSession) detach() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.room = ""
}

func (s *wsSession) inRoom() bool {
	if s.room == "" {
		s.replyError(codeNotInRoom, "join a room first")
		return false
	}
	return true
}

func (s *wsSession) reply(msg outboundMessage[any]) {
	select {
	case s.send <- msg:
	case <-s.writerDone:
	}
}

func (s *wsSession) replyError(code domain.Code, message string) {
	s.reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}})
}

func (s *wsSession) fail(err error) {
	if domain.KindOf(err) == domain.KindInternal {
		log.Printf("ws %s user %s: %v", s.id, s.userID, err)
	}
	s.reply(outboundMessage[any]{Type: "error", Payload: payloadFor(err)})
}

// writeLoop is the only goroutine that writes to the connection.
func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				log.Printf("ws %s write error: %v", s.id, err)
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}
