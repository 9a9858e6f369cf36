// Package auditcontext carries the acting identity through request contexts
// so audit records can attribute transitions without threading parameters.
package auditcontext

import "context"

type contextKey string

const (
	actorIDKey   contextKey = "audit_actor_id"
	actorRoleKey contextKey = "audit_actor_role"
	ipAddressKey contextKey = "audit_ip_address"
	userAgentKey contextKey = "audit_user_agent"
)

func WithActor(ctx context.Context, actorID, role string) context.Context {
	if actorID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actorID)
	}
	if role != "" {
		ctx = context.WithValue(ctx, actorRoleKey, role)
	}
	return ctx
}

func ActorFromContext(ctx context.Context) (string, string) {
	actorID, _ := ctx.Value(actorIDKey).(string)
	role, _ := ctx.Value(actorRoleKey).(string)
	return actorID, role
}

func WithIPAddress(ctx context.Context, ipAddress string) context.Context {
	if ipAddress == "" {
		return ctx
	}
	return context.WithValue(ctx, ipAddressKey, ipAddress)
}

func IPAddressFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ipAddressKey).(string)
	return value
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	if userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	value, _ := ctx.Value(userAgentKey).(string)
	return value
}
