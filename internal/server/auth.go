package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/futorumeshi/internal/auth/domain"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	email := strings.TrimSpace(req.Email)
	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		logger.WithContext(c.Request.Context(), s.log).Warn("operator login failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, result.Session)
}

func (s *Server) Logout(c *gin.Context) {
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	session, err := s.currentSession(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) currentSession(c *gin.Context) (*authdomain.Session, error) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.authsvc.Authenticate(c.Request.Context(), token)
}
