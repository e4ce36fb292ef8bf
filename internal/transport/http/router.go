package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-room-service/internal/app"
)

// NewRouter wires the REST API under /api and the session gateway at /ws.
func NewRouter(service *app.RoomService, authn Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	ws := NewWSHandler(service, authn)
	r.GET("/ws", gin.WrapF(ws.ServeWS))

	rooms := NewRoomHandler(service)
	api := r.Group("/api", RequireUser(authn))
	{
		api.GET("/rooms", rooms.ListRooms)
		api.POST("/rooms", rooms.CreateRoom)
		api.GET("/rooms/:code", rooms.GetRoom)
		api.POST("/rooms/:code/join", rooms.JoinRoom)
		api.POST("/rooms/:code/leave", rooms.LeaveRoom)
		api.POST("/rooms/:code/start", rooms.StartRoom)
		api.POST("/rooms/:code/end", rooms.EndRoom)
		api.POST("/rooms/:code/answers", rooms.SubmitAnswer)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorPayload{Code: "NOT_FOUND", Message: "no such route"})
	})
	return r
}
