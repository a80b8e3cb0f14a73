// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them, services read them; keeping
// the package free of net/http lets services avoid HTTP imports entirely.
//
// Services read values:
//
//	identity := requestcontext.Identity(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithIdentity(ctx, testIdentity)
package requestcontext

import (
	"context"
	"time"

	id "gatehouse/pkg/domain"
)

// Role labels what kind of caller an identity represents. Role-to-endpoint
// authorization is layered above the lifecycle; the core only cares whether
// an identity carries a host account.
type Role string

const (
	RoleReception Role = "reception"
	RoleHost      Role = "host"
	RoleAdmin     Role = "admin"
)

// ActingIdentity is the authenticated caller as resolved by the identity
// layer. HostID is zero unless the caller represents a host account.
type ActingIdentity struct {
	UserID id.UserID
	HostID id.HostID
	Role   Role
}

// IsZero reports whether no identity was attached to the context.
func (a ActingIdentity) IsZero() bool { return a.UserID.IsZero() }

// HasHostAccount reports whether the caller represents a host.
func (a ActingIdentity) HasHostAccount() bool { return !a.HostID.IsZero() }

type (
	identityKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyIdentity    = identityKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Identity retrieves the acting identity from the context. Returns the zero
// identity if the request was not authenticated.
func Identity(ctx context.Context) ActingIdentity {
	if ident, ok := ctx.Value(ContextKeyIdentity).(ActingIdentity); ok {
		return ident
	}
	return ActingIdentity{}
}

// WithIdentity injects an acting identity into the context.
func WithIdentity(ctx context.Context, ident ActingIdentity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, ident)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context, falling back to
// time.Now for non-HTTP contexts (workers, CLI, tests that don't pin time).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins a specific time in the context so a whole operation observes
// one clock reading and tests get deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
