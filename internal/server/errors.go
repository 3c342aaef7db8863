package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/mediavault/internal/authorization"
	mediadomain "github.com/smallbiznis/mediavault/internal/media/domain"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	quotadomain "github.com/smallbiznis/mediavault/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
	"github.com/smallbiznis/mediavault/pkg/db/pagination"
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
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
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

// bindError turns a gin binding failure into field-level validation errors.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   jsonFieldName(fe.Field()),
			Code:    fe.Tag(),
			Message: validationTagMessage(fe),
		})
	}
	return out
}

func jsonFieldName(field string) string {
	if field == "" {
		return ""
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func validationTagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	default:
		return "invalid value"
	}
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

	// Quota rejections are structured refusals, not malformed input.
	switch {
	case errors.Is(err, quotadomain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "file_too_large",
			Message: "file exceeds the plan's maximum upload size",
		}
	case errors.Is(err, usagedomain.ErrStorageLimitExceeded):
		return http.StatusBadRequest, errorPayload{
			Type:    "storage_limit_exceeded",
			Message: "storage limit exceeded for the current plan",
		}
	case errors.Is(err, quotadomain.ErrTransformationLimitExceeded):
		return http.StatusBadRequest, errorPayload{
			Type:    "transformation_limit_exceeded",
			Message: "transformation limit exceeded for the current period",
		}
	case errors.Is(err, quotadomain.ErrQuotaExceeded):
		return http.StatusBadRequest, errorPayload{
			Type:    "quota_exceeded",
			Message: "quota exceeded",
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
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrAlreadySubscribed),
		errors.Is(err, paymentdomain.ErrPaymentNotSucceeded),
		errors.Is(err, paymentdomain.ErrPaymentNotReactivatable),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotActive),
		errors.Is(err, mediadomain.ErrAlreadyReclaimed):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service temporarily unavailable",
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
	case errors.Is(err, paymentdomain.ErrAlreadySubscribed):
		return "already subscribed to this plan"
	case errors.Is(err, paymentdomain.ErrPaymentNotSucceeded):
		return "payment has not succeeded"
	case errors.Is(err, paymentdomain.ErrPaymentNotReactivatable):
		return "payment is not awaiting reactivation"
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotActive):
		return "subscription is not active"
	case errors.Is(err, mediadomain.ErrAlreadyReclaimed):
		return "media usage was already reclaimed"
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
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, paymentdomain.ErrFreePlanNotPayable),
		errors.Is(err, paymentdomain.ErrInvalidPayment),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, usagedomain.ErrInvalidUser),
		errors.Is(err, usagedomain.ErrInvalidSize),
		errors.Is(err, usagedomain.ErrInvalidTransformations),
		errors.Is(err, quotadomain.ErrInvalidOperation),
		errors.Is(err, quotadomain.ErrInvalidSize),
		errors.Is(err, mediadomain.ErrInvalidMedia):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, mediadomain.ErrMediaNotFound),
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
	case errors.Is(err, paymentdomain.ErrFreePlanNotPayable):
		return "free_plan_not_payable"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if code == "free_plan_not_payable" {
		return "planId"
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
	case "free_plan_not_payable":
		return "the free plan does not require payment"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger a stable error type and code.
// Quota refusals share one type so the logger can keep them quiet.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	switch payload.Type {
	case "file_too_large", "storage_limit_exceeded", "transformation_limit_exceeded", "quota_exceeded":
		return "quota_exceeded", payload.Type
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
