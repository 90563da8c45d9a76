package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/futorumeshi/internal/observability/logger"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status       string `form:"status"`
		ReferralCode string `form:"referral_code"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		Status:       strings.TrimSpace(query.Status),
		ReferralCode: strings.TrimSpace(query.ReferralCode),
		PageToken:    query.PageToken,
		PageSize:     int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, err := requireSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListSubscriptionDeliveries(c *gin.Context) {
	id, err := requireSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.subscriptionSvc.GetByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.deliverySvc.ListBySubscription(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := requireSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.subscriptionSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.WithContext(c.Request.Context(), s.log).Info("subscription canceled by operator",
		zap.String("subscription_id", id),
	)
	c.JSON(http.StatusOK, gin.H{"data": item})
}
