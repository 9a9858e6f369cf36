package authorization

import (
	"context"

	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	"go.uber.org/zap"
)

type capability struct {
	object string
	action string
}

// grants is the static role capability matrix. Admin capabilities are a
// strict superset of employee capabilities except letter authoring, which is
// subscriber-only on purpose: staff decide on letters, they do not write
// them.
var grants = map[authdomain.Role]map[capability]bool{
	authdomain.RoleUser: {
		{ObjectLetter, ActionLetterWrite}: true,
	},
	authdomain.RoleEmployee: {
		{ObjectCommission, ActionCommissionView}: true,
	},
	authdomain.RoleAdmin: {
		{ObjectReview, ActionReviewDecide}:         true,
		{ObjectCoupon, ActionCouponManage}:         true,
		{ObjectCommission, ActionCommissionView}:   true,
		{ObjectCommission, ActionCommissionPayout}: true,
	},
}

var knownObjects = map[string]bool{
	ObjectLetter:     true,
	ObjectReview:     true,
	ObjectCoupon:     true,
	ObjectCommission: true,
}

type ServiceImpl struct {
	log *zap.Logger
}

func NewService(log *zap.Logger) Service {
	return &ServiceImpl{log: log.Named("authorization.service")}
}

func (s *ServiceImpl) Authorize(_ context.Context, role authdomain.Role, object string, action string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if !knownObjects[object] {
		return ErrInvalidObject
	}
	if action == "" {
		return ErrInvalidAction
	}
	if grants[role][capability{object, action}] {
		return nil
	}
	s.log.Debug("authorization denied",
		zap.String("role", string(role)),
		zap.String("object", object),
		zap.String("action", action),
	)
	return ErrForbidden
}
