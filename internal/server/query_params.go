package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalDate accepts a calendar date; the delivery service interprets it in the storefront zone.
func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateOnlyLayout, trimmed)
	if err != nil {
		return nil, errors.New("invalid_date")
	}
	return &parsed, nil
}

func requireSnowflakeParam(c *gin.Context, name string) (string, error) {
	id := strings.TrimSpace(c.Param(name))
	parsed, err := snowflake.ParseString(id)
	if err != nil || parsed <= 0 {
		return "", newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
