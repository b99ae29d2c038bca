package server

import (
	"github.com/gin-gonic/gin"
	authservice "github.com/smallbiznis/loadpass/internal/auth/service"
	obscontext "github.com/smallbiznis/loadpass/internal/observability/context"
)

const (
	contextUserIDKey    = "user_id"
	contextUserEmailKey = "user_email"
	contextHandleKey    = "package_handle"
)

// AuthRequired resolves the caller from the bearer token and stores the user id on the context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := authservice.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		identity, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, identity.UserID)
		c.Set(contextUserEmailKey, identity.Email)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), identity.UserID))
		c.Next()
	}
}
