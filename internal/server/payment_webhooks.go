package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Stripe caps event payloads well below this.
const maxWebhookBodyBytes = 1 << 20

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("payload", "payload_too_large", "payload too large"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if result.EventType != "" {
		c.Set("payment_event_type", result.EventType)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"event_id": result.EventID,
		"outcome":  result.Outcome,
	})
}
