// Package principal carries the identity of the caller through the
// pipeline as an explicit value instead of an ambient request-scoped
// accessor.
package principal

import "context"

// Anonymous is the sentinel identity used when no user is attached.
const Anonymous = "anonymous"

// System marks records written by the system itself rather than a user.
const System = "system"

// Principal is the identity stamped into history records and point
// payloads.
type Principal struct {
	Name string
}

// Identity returns the principal's name or the anonymous sentinel.
func (p Principal) Identity() string {
	if p.Name == "" {
		return Anonymous
	}
	return p.Name
}

type ctxKey struct{}

// WithContext attaches a principal to the request context. Only the
// HTTP layer reads it back; core components take Principal parameters.
func WithContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal attached by the auth middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
