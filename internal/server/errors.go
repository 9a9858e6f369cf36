package server

import (
	"errors"
	"net/http"

	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	"github.com/counselops/letterflow/internal/authorization"
	checkoutdomain "github.com/counselops/letterflow/internal/checkout/domain"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/counselops/letterflow/internal/plan"
	"github.com/gin-gonic/gin"
)

// apiError is the single JSON error shape for every endpoint.
type apiError struct {
	status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *apiError) Error() string { return e.Code }

var (
	ErrUnauthorized = &apiError{status: http.StatusUnauthorized, Code: "unauthorized", Message: "authentication required"}
	ErrForbidden    = &apiError{status: http.StatusForbidden, Code: "forbidden", Message: "insufficient permissions"}
	ErrNotFound     = &apiError{status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
	ErrRateLimited  = &apiError{status: http.StatusTooManyRequests, Code: "rate_limited", Message: "too many requests"}
)

func invalidRequestError() *apiError {
	return &apiError{status: http.StatusBadRequest, Code: "invalid_request", Message: "request body is invalid"}
}

func newValidationError(field, code, message string) *apiError {
	return &apiError{status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

// AbortWithError translates domain errors into HTTP responses. The three
// financially sensitive outcomes keep distinct machine codes so clients can
// react without parsing messages: allowance_exhausted, invalid_transition,
// conflict.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		abort(c, api)
		return
	}

	var transition *letterdomain.TransitionError
	if errors.As(err, &transition) {
		abort(c, &apiError{
			status:  http.StatusConflict,
			Code:    "invalid_transition",
			Message: transition.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, letterdomain.ErrAllowanceExhausted):
		abort(c, &apiError{status: http.StatusPaymentRequired, Code: "allowance_exhausted", Message: "letter allowance exhausted"})
	case errors.Is(err, letterdomain.ErrInvalidTransition):
		abort(c, &apiError{status: http.StatusConflict, Code: "invalid_transition", Message: "status change not allowed"})
	case errors.Is(err, letterdomain.ErrTransitionConflict):
		abort(c, &apiError{status: http.StatusConflict, Code: "conflict", Message: "letter changed concurrently, reload and retry"})
	case errors.Is(err, letterdomain.ErrNotDeletable):
		abort(c, &apiError{status: http.StatusConflict, Code: "conflict", Message: "letter is not deletable in its current status"})
	case errors.Is(err, letterdomain.ErrNotFound),
		errors.Is(err, allowancedomain.ErrSubscriptionNotFound),
		errors.Is(err, allowancedomain.ErrUserNotFound),
		errors.Is(err, coupondomain.ErrCouponNotFound),
		errors.Is(err, coupondomain.ErrCommissionNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, checkoutdomain.ErrUnknownPlan):
		abort(c, ErrNotFound)
	case errors.Is(err, letterdomain.ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		abort(c, ErrForbidden)
	case errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired):
		abort(c, ErrUnauthorized)
	case errors.Is(err, authdomain.ErrEmailTaken):
		abort(c, &apiError{status: http.StatusConflict, Code: "email_taken", Message: "email is already registered"})
	case errors.Is(err, authdomain.ErrInvalidEmail):
		abort(c, newValidationError("email", "invalid_email", "email is invalid"))
	case errors.Is(err, authdomain.ErrWeakPassword):
		abort(c, newValidationError("password", "weak_password", "password is too short"))
	case errors.Is(err, letterdomain.ErrInvalidTitle):
		abort(c, newValidationError("title", "invalid_title", "title is required"))
	case errors.Is(err, letterdomain.ErrMissingContent):
		abort(c, newValidationError("final_content", "missing_final_content", "final content is required to approve"))
	case errors.Is(err, letterdomain.ErrMissingReason):
		abort(c, newValidationError("reason", "missing_rejection_reason", "a reason is required to reject"))
	case errors.Is(err, coupondomain.ErrCouponInactive):
		abort(c, &apiError{status: http.StatusConflict, Code: "coupon_inactive", Message: "coupon is no longer active"})
	case errors.Is(err, coupondomain.ErrCouponExists):
		abort(c, &apiError{status: http.StatusConflict, Code: "coupon_exists", Message: "coupon code already exists"})
	case errors.Is(err, coupondomain.ErrCommissionPaid):
		abort(c, &apiError{status: http.StatusConflict, Code: "commission_already_paid", Message: "commission was already paid"})
	case errors.Is(err, coupondomain.ErrInvalidCode):
		abort(c, newValidationError("code", "invalid_code", "coupon code is invalid"))
	case errors.Is(err, coupondomain.ErrInvalidDiscount):
		abort(c, newValidationError("discount_percent", "invalid_discount", "discount must be between 1 and 100"))
	case errors.Is(err, checkoutdomain.ErrInvalidSession):
		abort(c, newValidationError("payment_session_id", "invalid_payment_session", "payment session id is required"))
	default:
		abort(c, &apiError{status: http.StatusBadGateway, Code: "dependency_failure", Message: "upstream dependency failed"})
	}
}

func abort(c *gin.Context, api *apiError) {
	c.AbortWithStatusJSON(api.status, gin.H{"error": api})
}
