package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/futorumeshi/internal/delivery/domain"
)

func (s *Server) ListUpcomingDeliveries(c *gin.Context) {
	var query struct {
		From   string `form:"from"`
		To     string `form:"to"`
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	from, err := parseOptionalDate(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "from must be YYYY-MM-DD"))
		return
	}
	to, err := parseOptionalDate(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "to must be YYYY-MM-DD"))
		return
	}

	items, err := s.deliverySvc.ListUpcoming(c.Request.Context(), deliverydomain.ListUpcomingRequest{
		From:   from,
		To:     to,
		Status: strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) MarkDeliveryShipped(c *gin.Context) {
	id, err := requireSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.deliverySvc.MarkShipped(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) PreviewDeliveries(c *gin.Context) {
	var query struct {
		Kind   string `form:"kind" binding:"required"`
		PlanID string `form:"plan_id" binding:"required"`
		Date   string `form:"date"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.deliverySvc.Preview(c.Request.Context(), deliverydomain.PreviewRequest{
		Kind:   strings.TrimSpace(query.Kind),
		PlanID: strings.TrimSpace(query.PlanID),
		Date:   strings.TrimSpace(query.Date),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
