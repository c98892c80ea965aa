package middleware

import (
	"context"
	"strings"

	"devunity/internal/domain"
	"devunity/internal/errors"

	"github.com/gin-gonic/gin"
)

// Authenticator resolves a session token into its user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type Auth struct {
	Sessions Authenticator
}

// TokenFromRequest reads the bearer token, falling back to the token query
// parameter used by socket handshakes.
func TokenFromRequest(ctx *gin.Context) string {
	authHeader := ctx.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ctx.Query("token")
}

func (m *Auth) AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := TokenFromRequest(ctx)
		if token == "" {
			ctx.Error(errors.Unauthorized("Authentication required", nil))
			ctx.Abort()
			return
		}

		user, err := m.Sessions.Authenticate(ctx.Request.Context(), token)
		if err != nil {
			ctx.Error(err)
			ctx.Abort()
			return
		}

		ctx.Set("user_id", user.ID)
		ctx.Set("user", user)
		ctx.Set("session_token", token)
		ctx.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleWare.
func CurrentUser(ctx *gin.Context) (*domain.User, bool) {
	v, ok := ctx.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}
