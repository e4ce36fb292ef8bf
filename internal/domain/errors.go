package domain

import "errors"

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindInvalid      Kind = "invalid"
	KindInternal     Kind = "internal"
)

// Code is the stable wire identifier of an error.
type Code string

const (
	CodeRoomNotFound          Code = "ROOM_NOT_FOUND"
	CodeParticipantNotFound   Code = "PARTICIPANT_NOT_FOUND"
	CodeQuizNotFound          Code = "QUIZ_NOT_FOUND"
	CodeQuestionNotFound      Code = "QUESTION_NOT_FOUND"
	CodeOptionNotFound        Code = "OPTION_NOT_FOUND"
	CodeNotHost               Code = "NOT_HOST"
	CodeAuthenticationFailed  Code = "AUTHENTICATION_FAILED"
	CodeRoomNotJoinable       Code = "ROOM_NOT_JOINABLE"
	CodeRoomFull              Code = "ROOM_FULL"
	CodeRoomNotInProgress     Code = "ROOM_NOT_IN_PROGRESS"
	CodeAlreadyAnswered       Code = "ALREADY_ANSWERED"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeNotEnoughParticipants Code = "NOT_ENOUGH_PARTICIPANTS"
	CodeHostCannotLeave       Code = "HOST_CANNOT_LEAVE"
	CodeCodeTaken             Code = "CODE_TAKEN"
	CodeCodeGenerationFailed  Code = "CODE_GENERATION_FAILED"
	CodeInvalidPolicy         Code = "INVALID_POLICY"
	CodeInternal              Code = "INTERNAL"
)

// Error is a classified failure of a room operation.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code Code, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrRoomNotFound        = newError(CodeRoomNotFound, KindNotFound, "room not found")
	ErrParticipantNotFound = newError(CodeParticipantNotFound, KindNotFound, "participant not found in room")
	ErrQuizNotFound        = newError(CodeQuizNotFound, KindNotFound, "quiz not found")
	ErrQuestionNotFound    = newError(CodeQuestionNotFound, KindInvalid, "question not found")
	ErrOptionNotFound      = newError(CodeOptionNotFound, KindInvalid, "option not found")

	ErrNotHost              = newError(CodeNotHost, KindForbidden, "only the host can do this")
	ErrAuthenticationFailed = newError(CodeAuthenticationFailed, KindUnauthorized, "authentication failed")

	ErrRoomNotJoinable       = newError(CodeRoomNotJoinable, KindConflict, "room is not accepting participants")
	ErrRoomFull              = newError(CodeRoomFull, KindConflict, "room is full")
	ErrRoomNotInProgress     = newError(CodeRoomNotInProgress, KindConflict, "room is not in progress")
	ErrAlreadyAnswered       = newError(CodeAlreadyAnswered, KindConflict, "question already answered")
	ErrInvalidTransition     = newError(CodeInvalidTransition, KindConflict, "invalid room status transition")
	ErrNotEnoughParticipants = newError(CodeNotEnoughParticipants, KindConflict, "not enough participants to start")
	ErrHostCannotLeave       = newError(CodeHostCannotLeave, KindConflict, "host cannot leave the room")
	ErrCodeTaken             = newError(CodeCodeTaken, KindConflict, "room code already in use")

	ErrCodeGenerationFailed = newError(CodeCodeGenerationFailed, KindInternal, "failed to generate a unique room code")
	ErrInvalidPolicy        = newError(CodeInvalidPolicy, KindInvalid, "invalid room policy")
)

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the wire code for err.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
