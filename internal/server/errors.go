package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	authdomain "github.com/smallbiznis/futorumeshi/internal/auth/domain"
	deliverydomain "github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
	plandomain "github.com/smallbiznis/futorumeshi/internal/plan/domain"
	referraldomain "github.com/smallbiznis/futorumeshi/internal/referral/domain"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var limited *authdomain.RateLimitedError
		if errors.As(lastErr.Err, &limited) && limited.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(limited)))
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError turns gin binding failures into field level validation errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := toSnake(fe.Field())
		out = append(out, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: bindingMessage(fe.Tag()),
		})
	}
	return &ValidationErrors{Errors: out}
}

func bindingMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gte", "lte", "min", "max":
		return "is out of range"
	default:
		return "invalid value"
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, authdomain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many login attempts",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, referraldomain.ErrDuplicateCode),
		errors.Is(err, subscriptiondomain.ErrNotActive),
		errors.Is(err, deliverydomain.ErrNotScheduled):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, authdomain.ErrAuthDisabled):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, referraldomain.ErrDuplicateCode):
		return "referral code already exists"
	case errors.Is(err, subscriptiondomain.ErrNotActive):
		return "subscription is not active"
	case errors.Is(err, deliverydomain.ErrNotScheduled):
		return "delivery is not scheduled"
	default:
		return "conflict"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrInvalidPlan):
		return true
	case isReferralValidationError(err),
		isOrderValidationError(err),
		isSubscriptionValidationError(err),
		isDeliveryValidationError(err),
		isPaymentValidationError(err):
		return true
	default:
		return false
	}
}

func isReferralValidationError(err error) bool {
	return errors.Is(err, referraldomain.ErrInvalidCode) ||
		errors.Is(err, referraldomain.ErrInvalidName) ||
		errors.Is(err, referraldomain.ErrInvalidEmail) ||
		errors.Is(err, referraldomain.ErrNothingToApply)
}

func isOrderValidationError(err error) bool {
	return errors.Is(err, orderdomain.ErrInvalidSession) ||
		errors.Is(err, orderdomain.ErrInvalidEmail) ||
		errors.Is(err, orderdomain.ErrInvalidAmount) ||
		errors.Is(err, orderdomain.ErrInvalidQuantity)
}

func isSubscriptionValidationError(err error) bool {
	return errors.Is(err, subscriptiondomain.ErrInvalidID) ||
		errors.Is(err, subscriptiondomain.ErrInvalidProviderID) ||
		errors.Is(err, subscriptiondomain.ErrInvalidInvoiceID) ||
		errors.Is(err, subscriptiondomain.ErrInvalidEmail) ||
		errors.Is(err, subscriptiondomain.ErrInvalidStatus)
}

func isDeliveryValidationError(err error) bool {
	return errors.Is(err, deliverydomain.ErrInvalidID) ||
		errors.Is(err, deliverydomain.ErrInvalidKind) ||
		errors.Is(err, deliverydomain.ErrInvalidDate) ||
		errors.Is(err, deliverydomain.ErrInvalidDateRange) ||
		errors.Is(err, deliverydomain.ErrInvalidStatus)
}

func isPaymentValidationError(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidProvider) ||
		errors.Is(err, paymentdomain.ErrInvalidPayload) ||
		errors.Is(err, paymentdomain.ErrInvalidEvent)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, referraldomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, deliverydomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, referraldomain.ErrNothingToApply):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_plan":
		return "plan_id"
	case "invalid_schedule_kind":
		return "kind"
	case "invalid_date_range":
		return "to"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_plan":
		return "unknown plan"
	case "invalid_date_range":
		return "to must be after from"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog maps a handler error to the error_type and error_code request log fields.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return "internal", code
	}
	return payload.Type, code
}

func retryAfterSeconds(err *authdomain.RateLimitedError) int {
	seconds := int(math.Ceil(err.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
