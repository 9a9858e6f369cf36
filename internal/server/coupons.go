package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	"github.com/gin-gonic/gin"
)

type createCouponRequest struct {
	Code            string `json:"code"`
	EmployeeID      string `json:"employee_id"`
	DiscountPercent int    `json:"discount_percent"`
	IsSuper         bool   `json:"is_super"`
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	domainReq := coupondomain.CreateCouponRequest{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		IsSuper:         req.IsSuper,
	}
	if req.EmployeeID != "" {
		employeeID, err := snowflake.ParseString(req.EmployeeID)
		if err != nil {
			AbortWithError(c, newValidationError("employee_id", "invalid_employee", "employee id is invalid"))
			return
		}
		domainReq.EmployeeID = &employeeID
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": couponView(coupon)})
}

func (s *Server) DeactivateCoupon(c *gin.Context) {
	if err := s.couponSvc.Deactivate(c.Request.Context(), c.Param("code")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (s *Server) ValidateCoupon(c *gin.Context) {
	coupon, err := s.couponSvc.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"code":             coupon.Code,
		"discount_percent": coupon.DiscountPercent,
	}})
}

// ListCommissions returns the caller's own commissions; admins may pass
// ?employee_id= to inspect any employee's ledger.
func (s *Server) ListCommissions(c *gin.Context) {
	principal := s.principal(c)

	employeeID := principal.UserID
	if raw := c.Query("employee_id"); raw != "" {
		if principal.Role != authdomain.RoleAdmin {
			AbortWithError(c, ErrForbidden)
			return
		}
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("employee_id", "invalid_employee", "employee id is invalid"))
			return
		}
		employeeID = parsed
	}

	commissions, err := s.couponSvc.ListCommissions(c.Request.Context(), employeeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(commissions))
	for _, commission := range commissions {
		views = append(views, commissionView(commission))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) PayCommission(c *gin.Context) {
	commissionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.couponSvc.MarkCommissionPaid(c.Request.Context(), commissionID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

func couponView(coupon *coupondomain.EmployeeCoupon) gin.H {
	view := gin.H{
		"code":             coupon.Code,
		"discount_percent": coupon.DiscountPercent,
		"is_super":         coupon.IsSuper,
		"is_active":        coupon.IsActive,
		"usage_count":      coupon.UsageCount,
	}
	if coupon.EmployeeID != nil {
		view["employee_id"] = coupon.EmployeeID.String()
	}
	return view
}

func commissionView(commission *coupondomain.Commission) gin.H {
	view := gin.H{
		"id":                  commission.ID.String(),
		"subscription_id":     commission.SubscriptionID.String(),
		"subscription_amount": commission.SubscriptionAmount.StringFixed(2),
		"commission_amount":   commission.CommissionAmount.StringFixed(2),
		"status":              commission.Status,
		"created_at":          commission.CreatedAt.Format(time.RFC3339),
	}
	if commission.PaidAt != nil {
		view["paid_at"] = commission.PaidAt.Format(time.RFC3339)
	}
	return view
}
