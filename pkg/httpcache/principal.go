package httpcache

import "context"

// RoleAdmin marks administrative principals. Their requests bypass the
// response cache so they always see fresh data.
const RoleAdmin = "admin"

// Principal is the authenticated caller of a request.
type Principal struct {
	ID   string
	Role string
}

// IsAdmin reports whether the principal has the administrative role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

// WithPrincipal returns a context carrying p. Authentication middleware
// calls this once the caller is known.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
