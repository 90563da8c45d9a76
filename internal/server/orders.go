package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/pkg/db/pagination"
)

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ReferralCode string `form:"referral_code"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrderRequest{
		ReferralCode: strings.TrimSpace(query.ReferralCode),
		PageToken:    query.PageToken,
		PageSize:     int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Orders, "page_info": resp.PageInfo})
}
