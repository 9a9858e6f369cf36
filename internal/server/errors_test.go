package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/gin-gonic/gin"
)

func abortAndDecode(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/test", nil)

	AbortWithError(c, err)

	var body struct {
		Error map[string]any `json:"error"`
	}
	if decodeErr := json.Unmarshal(recorder.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("decode response: %v", decodeErr)
	}
	return recorder.Code, body.Error
}

func TestAbortMapsAllowanceExhausted(t *testing.T) {
	status, payload := abortAndDecode(t, letterdomain.ErrAllowanceExhausted)
	if status != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", status)
	}
	if payload["code"] != "allowance_exhausted" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestAbortMapsTransitionErrorWithPair(t *testing.T) {
	err := &letterdomain.TransitionError{From: letterdomain.StatusDraft, To: letterdomain.StatusApproved}
	status, payload := abortAndDecode(t, err)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if payload["code"] != "invalid_transition" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
	message, _ := payload["message"].(string)
	if message == "" || message == "status change not allowed" {
		t.Fatalf("transition error must carry the status pair, got %q", message)
	}
}

func TestAbortMapsConcurrencyConflict(t *testing.T) {
	status, payload := abortAndDecode(t, letterdomain.ErrTransitionConflict)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if payload["code"] != "conflict" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestAbortMapsNotFound(t *testing.T) {
	status, payload := abortAndDecode(t, letterdomain.ErrNotFound)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if payload["code"] != "not_found" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestAbortMapsAuthFailures(t *testing.T) {
	for _, err := range []error{
		authdomain.ErrInvalidCredentials,
		authdomain.ErrSessionNotFound,
		authdomain.ErrSessionExpired,
	} {
		status, payload := abortAndDecode(t, err)
		if status != http.StatusUnauthorized {
			t.Fatalf("%v: expected 401, got %d", err, status)
		}
		if payload["code"] != "unauthorized" {
			t.Fatalf("%v: unexpected code %v", err, payload["code"])
		}
	}
}

func TestAbortMapsValidationWithField(t *testing.T) {
	status, payload := abortAndDecode(t, authdomain.ErrWeakPassword)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if payload["field"] != "password" {
		t.Fatalf("expected password field, got %v", payload["field"])
	}
}

func TestAbortMapsCouponConflicts(t *testing.T) {
	status, payload := abortAndDecode(t, coupondomain.ErrCommissionPaid)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if payload["code"] != "commission_already_paid" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestAbortDefaultsToDependencyFailure(t *testing.T) {
	status, payload := abortAndDecode(t, errors.New("connection reset"))
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if payload["code"] != "dependency_failure" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
	message, _ := payload["message"].(string)
	if message == "connection reset" {
		t.Fatal("internal error detail must not leak to clients")
	}
}

func TestAbortPassesAPIErrorsThrough(t *testing.T) {
	status, payload := abortAndDecode(t, ErrRateLimited)
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if payload["code"] != "rate_limited" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}
