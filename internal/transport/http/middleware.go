package http

import (
	"github.com/gin-gonic/gin"

	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
)

const userIDKey = "user_id"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Verify(token string) (string, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// caller's user id on the context.
func RequireUser(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondError(c, domain.ErrAuthenticationFailed)
			return
		}
		userID, err := authn.Verify(token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
