package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	referraldomain "github.com/smallbiznis/futorumeshi/internal/referral/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) CreateReferrer(c *gin.Context) {
	var req referraldomain.CreateReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	referrer, err := s.referrerSvc.Create(c.Request.Context(), referraldomain.CreateReferrerRequest{
		Code:  strings.TrimSpace(req.Code),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Note:  strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.WithContext(c.Request.Context(), s.log).Info("referrer created",
		zap.String("referral_code", referrer.Code),
	)
	c.JSON(http.StatusCreated, gin.H{"data": referrer})
}

func (s *Server) ListReferrers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Active string `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.referrerSvc.List(c.Request.Context(), referraldomain.ListReferrerRequest{
		Active:    active,
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Referrers, "page_info": resp.PageInfo})
}

func (s *Server) GetReferrer(c *gin.Context) {
	referrer, err := s.referrerSvc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": referrer})
}

func (s *Server) UpdateReferrer(c *gin.Context) {
	var req referraldomain.UpdateReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	referrer, err := s.referrerSvc.Update(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": referrer})
}

func (s *Server) DeleteReferrer(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if err := s.referrerSvc.Delete(c.Request.Context(), code); err != nil {
		AbortWithError(c, err)
		return
	}

	logger.WithContext(c.Request.Context(), s.log).Info("referrer deleted",
		zap.String("referral_code", code),
	)
	c.Status(http.StatusNoContent)
}

func (s *Server) ListReferrerStats(c *gin.Context) {
	stats, err := s.statsSvc.Stats(c.Request.Context(), "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) GetReferrerStats(c *gin.Context) {
	stats, err := s.statsSvc.Stats(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
