package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// RoomHandler exposes the room operations as JSON endpoints.
type RoomHandler struct {
	service *app.RoomService
}

func NewRoomHandler(service *app.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

type createRoomRequest struct {
	QuizID string        `json:"quizId" binding:"required"`
	Policy domain.Policy `json:"policy"`
}

type submitAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	AnswerID   string `json:"answerId" binding:"required"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), currentUser(c), req.QuizID, req.Policy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.service.ListOpenRooms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	state, err := h.service.GetRoomStatus(c.Request.Context(), roomCode(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	participant, err := h.service.JoinRoom(c.Request.Context(), roomCode(c), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	participant, err := h.service.LeaveRoom(c.Request.Context(), roomCode(c), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant.Summary())
}

func (h *RoomHandler) StartRoom(c *gin.Context) {
	room, err := h.service.StartRoom(c.Request.Context(), roomCode(c), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) EndRoom(c *gin.Context) {
	result, err := h.service.EndRoom(c.Request.Context(), roomCode(c), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":      result.Room,
		"standings": domain.Summaries(result.Standings),
	})
}

func (h *RoomHandler) SubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}
	participant, err := h.service.SubmitAnswer(c.Request.Context(), roomCode(c), currentUser(c), req.QuestionID, req.AnswerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

// roomCode reads the :code path parameter. Codes are uppercase; clients may type them in any case.
func roomCode(c *gin.Context) string {
	return strings.ToUpper(c.Param("code"))
}
