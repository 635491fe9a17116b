package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"

	identityKey = "identity"

	RoleUser     = "user"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Identity is the verified caller forwarded by the auth gateway. The engine
// trusts these headers; verification happens upstream.
type Identity struct {
	UserID snowflake.ID
	Role   string
}

func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := strings.ToLower(strings.TrimSpace(c.GetHeader(headerRole)))
		if role == "" {
			role = RoleUser
		}
		c.Set(identityKey, Identity{UserID: userID, Role: role})
		c.Next()
	}
}

func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := CurrentIdentity(c)
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func CurrentIdentity(c *gin.Context) Identity {
	if value, ok := c.Get(identityKey); ok {
		if identity, ok := value.(Identity); ok {
			return identity
		}
	}
	return Identity{}
}
