package context

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func RequestIDFromGin(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return ""
	}
	if value := RequestIDFromContext(c.Request.Context()); value != "" {
		return value
	}
	return strings.TrimSpace(c.GetString("request_id"))
}

func ActorFromGin(c *gin.Context) (string, string) {
	if c == nil || c.Request == nil {
		return "", ""
	}
	return ActorFromContext(c.Request.Context())
}
