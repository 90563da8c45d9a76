package server

import (
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/futorumeshi/internal/observability/context"
)

const (
	actorTypeOperator  = "operator"
	contextOperatorKey  = "operator_email"
)

// AdminRequired rejects requests without a valid operator session.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := s.currentSession(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorTypeOperator, session.Email)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOperatorKey, session.Email)
		c.Next()
	}
}
