package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/counselops/letterflow/internal/checkout/domain"
	"github.com/counselops/letterflow/internal/plan"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.plans.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(plans))
	for _, row := range plans {
		views = append(views, planView(row))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

type previewRequest struct {
	PlanType   string `json:"plan_type"`
	CouponCode string `json:"coupon_code"`
}

func (s *Server) PreviewCheckout(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	preview, err := s.checkoutSvc.Preview(c.Request.Context(), checkoutdomain.PreviewRequest{
		PlanType:   req.PlanType,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view := gin.H{
		"plan_type":        preview.PlanType,
		"plan_name":        preview.PlanName,
		"letters":          preview.Letters,
		"base_price":       preview.BasePrice.StringFixed(2),
		"discount_percent": preview.DiscountPercent,
		"discount":         preview.Discount.StringFixed(2),
		"final_price":      preview.FinalPrice.StringFixed(2),
		"unlimited":        preview.Unlimited,
	}
	if preview.CouponCode != "" {
		view["coupon_code"] = preview.CouponCode
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

type paymentWebhookRequest struct {
	UserID           string `json:"user_id"`
	PlanType         string `json:"plan_type"`
	PaymentSessionID string `json:"payment_session_id"`
	CouponCode       string `json:"coupon_code"`
}

// PaymentWebhook settles a confirmed checkout. The provider authenticates
// with the shared webhook secret; replayed deliveries are acknowledged
// without re-granting.
func (s *Server) PaymentWebhook(c *gin.Context) {
	secret := s.cfg.PaymentWebhookSecret
	provided := strings.TrimSpace(c.GetHeader(headerWebhookAuth))
	if secret == "" || provided == "" ||
		subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "user id is invalid"))
		return
	}

	result, err := s.checkoutSvc.Confirm(c.Request.Context(), checkoutdomain.ConfirmRequest{
		UserID:           userID,
		PlanType:         req.PlanType,
		PaymentSessionID: req.PaymentSessionID,
		CouponCode:       req.CouponCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"subscription_id": result.Subscription.ID.String(),
		"plan_type":       result.Subscription.PlanType,
		"replayed":        result.Replayed,
	}})
}

func planView(row plan.Plan) gin.H {
	return gin.H{
		"plan_type": row.PlanType,
		"name":      row.Name,
		"letters":   row.Letters,
		"price":     row.Price.StringFixed(2),
		"unlimited": row.IsUnlimited(),
	}
}
