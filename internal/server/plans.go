package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
)

type planResponse struct {
	plandomain.PlanConfig
	MealsPerMonth int    `json:"meals_per_month"`
	MenuSetName   string `json:"menu_set_name"`
}

func (s *Server) ListPlans(c *gin.Context) {
	plans := plandomain.Plans()
	out := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, planResponse{
			PlanConfig:    plan,
			MealsPerMonth: plan.MealsPerMonth(),
			MenuSetName:   plandomain.GetMenuSetName(plan.PlanID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
