package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// SessionStore keeps rooms in Redis so several instances can serve the same
// room. Every mutation is a single Lua script; reads are plain commands.
//
// Layout per room (every write refreshes all keys; they expire after ttl
// without writes):
//
//	room:{CODE}                   hash  room fields, seq counter, active count
//	room:{CODE}:roster            zset  user id scored by join sequence
//	room:{CODE}:member:{uid}      hash  status, score, rank, seq, joinedAt
//	room:{CODE}:answers:{uid}     hash  question id -> answer (dedupe)
//	room:{CODE}:answerlog:{uid}   list  answers in submission order
//	rooms:public                  zset  public waiting rooms by creation time
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) CreateRoom(ctx context.Context, room domain.Room, host domain.Participant) error {
	args := []interface{}{
		unixNano(host.JoinedAt),
		s.ttl.Milliseconds(),
		host.UserID,
		"code", room.Code,
		"hostId", room.HostID,
		"quizId", room.QuizID,
		"status", string(room.Status),
		"maxParticipants", room.Policy.MaxParticipants,
		"timeLimitSeconds", room.Policy.TimeLimitSeconds,
		"isPublic", boolField(room.Policy.IsPublic),
		"createdAt", unixNano(room.CreatedAt),
		"expiresAt", unixNano(room.ExpiresAt),
	}
	keys := []string{roomKey(room.Code), rosterKey(room.Code), memberKey(room.Code, host.UserID)}

	res, err := createRoomScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.Code, err)
	}
	if res != resultOK {
		return domain.ErrCodeTaken
	}

	if room.Policy.IsPublic {
		if err := s.client.ZAdd(ctx, publicRoomsKey, redis.Z{
			Score:  float64(room.CreatedAt.UnixMilli()),
			Member: room.Code,
		}).Err(); err != nil {
			return fmt.Errorf("list room %s: %w", room.Code, err)
		}
	}
	return nil
}

func (s *SessionStore) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomKey(code)).Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", code, err)
	}
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return decodeRoom(fields)
}

// ListOpenRooms reads the public index and prunes codes that are no longer waiting.
func (s *SessionStore) ListOpenRooms(ctx context.Context) ([]domain.Room, error) {
	codes, err := s.client.ZRange(ctx, publicRoomsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list public rooms: %w", err)
	}

	rooms := make([]domain.Room, 0, len(codes))
	for _, code := range codes {
		room, err := s.GetRoom(ctx, code)
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.client.ZRem(ctx, publicRoomsKey, code)
			continue
		}
		if err != nil {
			return nil, err
		}
		if room.Status != domain.RoomWaiting || !room.Policy.IsPublic {
			s.client.ZRem(ctx, publicRoomsKey, code)
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *SessionStore) Participants(ctx context.Context, code string) ([]domain.Participant, error) {
	exists, err := s.client.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}
	if exists == 0 {
		return nil, domain.ErrRoomNotFound
	}

	userIDs, err := s.client.ZRange(ctx, rosterKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get roster %s: %w", code, err)
	}

	members := make([]*redis.MapStringStringCmd, len(userIDs))
	logs := make([]*redis.StringSliceCmd, len(userIDs))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, userID := range userIDs {
			members[i] = pipe.HGetAll(ctx, memberKey(code, userID))
			logs[i] = pipe.LRange(ctx, answerLogKey(code, userID), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get participants %s: %w", code, err)
	}

	roster := make([]domain.Participant, 0, len(userIDs))
	for i := range userIDs {
		fields := members[i].Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodeParticipant(code, fields, logs[i].Val())
		if err != nil {
			return nil, err
		}
		roster = append(roster, p)
	}
	return roster, nil
}

func (s *SessionStore) Participant(ctx context.Context, code, userID string) (domain.Participant, error) {
	var fields *redis.MapStringStringCmd
	var log *redis.StringSliceCmd
	var exists *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, roomKey(code))
		fields = pipe.HGetAll(ctx, memberKey(code, userID))
		log = pipe.LRange(ctx, answerLogKey(code, userID), 0, -1)
		return nil
	})
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant %s/%s: %w", code, userID, err)
	}
	if exists.Val() == 0 {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	if len(fields.Val()) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return decodeParticipant(code, fields.Val(), log.Val())
}

func (s *SessionStore) AddParticipant(ctx context.Context, code string, p domain.Participant) (domain.Participant, bool, error) {
	keys := []string{roomKey(code), rosterKey(code), memberKey(code, p.UserID)}
	res, err := addParticipantScript.Run(ctx, s.client, keys,
		p.UserID, unixNano(p.JoinedAt), string(p.Status), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("add participant %s/%s: %w", code, p.UserID, err)
	}

	switch res {
	case resultNotFound:
		return domain.Participant{}, false, domain.ErrRoomNotFound
	case resultWrongStatus:
		return domain.Participant{}, false, domain.ErrRoomNotJoinable
	case resultFull:
		return domain.Participant{}, false, domain.ErrRoomFull
	}

	joined, err := s.Participant(ctx, code, p.UserID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return joined, res == resultOK, nil
}

func (s *SessionStore) Transition(ctx context.Context, code string, t app.Transition) (domain.Room, error) {
	if !domain.CanTransition(t.From, t.To) {
		return domain.Room{}, domain.ErrInvalidTransition
	}

	stampField := ""
	switch t.To {
	case domain.RoomInProgress:
		stampField = "startTime"
	case domain.RoomCompleted:
		stampField = "endTime"
	}

	res, err := transitionScript.Run(ctx, s.client, []string{roomKey(code), rosterKey(code)},
		string(t.From), string(t.To), unixNano(t.At), stampField, string(t.Participants), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return domain.Room{}, fmt.Errorf("transition room %s: %w", code, err)
	}
	switch res {
	case resultNotFound:
		return domain.Room{}, domain.ErrRoomNotFound
	case resultUnchanged:
		return domain.Room{}, domain.ErrInvalidTransition
	}

	if t.From == domain.RoomWaiting {
		s.client.ZRem(ctx, publicRoomsKey, code)
	}
	return s.GetRoom(ctx, code)
}

func (s *SessionStore) AppendAnswer(ctx context.Context, code, userID string, answer domain.Answer, reward int) (domain.Participant, error) {
	encoded, err := json.Marshal(answer)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("encode answer: %w", err)
	}
	if !answer.IsCorrect {
		reward = 0
	}

	keys := []string{roomKey(code), memberKey(code, userID), answersKey(code, userID), answerLogKey(code, userID), rosterKey(code)}
	res, err := appendAnswerScript.Run(ctx, s.client, keys,
		answer.QuestionID, string(encoded), reward, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("append answer %s/%s: %w", code, userID, err)
	}

	switch res {
	case resultNotFound:
		return domain.Participant{}, domain.ErrRoomNotFound
	case resultWrongStatus:
		return domain.Participant{}, domain.ErrRoomNotInProgress
	case resultNoMember:
		return domain.Participant{}, domain.ErrParticipantNotFound
	case resultDuplicate:
		return domain.Participant{}, domain.ErrAlreadyAnswered
	}
	return s.Participant(ctx, code, userID)
}

func (s *SessionStore) MarkLeft(ctx context.Context, code, userID string) (domain.Participant, error) {
	res, err := markLeftScript.Run(ctx, s.client, []string{roomKey(code), memberKey(code, userID), rosterKey(code)},
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("leave room %s/%s: %w", code, userID, err)
	}
	switch res {
	case resultNotFound:
		return domain.Participant{}, domain.ErrRoomNotFound
	case resultNoMember:
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return s.Participant(ctx, code, userID)
}

func (s *SessionStore) SaveRanks(ctx context.Context, code string, ranks map[string]int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for userID, rank := range ranks {
			pipe.HSet(ctx, memberKey(code, userID), "rank", rank)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save ranks %s: %w", code, err)
	}
	return nil
}

func decodeRoom(fields map[string]string) (domain.Room, error) {
	room := domain.Room{
		Code:   fields["code"],
		HostID: fields["hostId"],
		QuizID: fields["quizId"],
		Status: domain.RoomStatus(fields["status"]),
		Policy: domain.Policy{
			IsPublic: fields["isPublic"] == "1",
		},
	}

	var err error
	if room.Policy.MaxParticipants, err = strconv.Atoi(fields["maxParticipants"]); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s maxParticipants: %w", room.Code, err)
	}
	if room.Policy.TimeLimitSeconds, err = strconv.Atoi(fields["timeLimitSeconds"]); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s timeLimitSeconds: %w", room.Code, err)
	}
	if room.CreatedAt, err = parseTime(fields["createdAt"]); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s createdAt: %w", room.Code, err)
	}
	if room.ExpiresAt, err = parseTime(fields["expiresAt"]); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s expiresAt: %w", room.Code, err)
	}
	if v, ok := fields["startTime"]; ok {
		t, err := parseTime(v)
		if err != nil {
			return domain.Room{}, fmt.Errorf("decode room %s startTime: %w", room.Code, err)
		}
		room.StartTime = &t
	}
	if v, ok := fields["endTime"]; ok {
		t, err := parseTime(v)
		if err != nil {
			return domain.Room{}, fmt.Errorf("decode room %s endTime: %w", room.Code, err)
		}
		room.EndTime = &t
	}
	return room, nil
}

func decodeParticipant(code string, fields map[string]string, log []string) (domain.Participant, error) {
	p := domain.Participant{
		RoomCode: code,
		UserID:   fields["userId"],
		Status:   domain.ParticipantStatus(fields["status"]),
		Answers:  make([]domain.Answer, 0, len(log)),
	}

	var err error
	if p.Score, err = strconv.Atoi(fields["score"]); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant %s score: %w", p.UserID, err)
	}
	if p.Rank, err = strconv.Atoi(fields["rank"]); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant %s rank: %w", p.UserID, err)
	}
	if p.Seq, err = strconv.Atoi(fields["seq"]); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant %s seq: %w", p.UserID, err)
	}
	if p.JoinedAt, err = parseTime(fields["joinedAt"]); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant %s joinedAt: %w", p.UserID, err)
	}

	for _, raw := range log {
		var answer domain.Answer
		if err := json.Unmarshal([]byte(raw), &answer); err != nil {
			return domain.Participant{}, fmt.Errorf("decode answer for %s: %w", p.UserID, err)
		}
		p.Answers = append(p.Answers, answer)
	}
	return p, nil
}

// Timestamps are stored as unix nanoseconds so scripts can compare them.
func unixNano(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
