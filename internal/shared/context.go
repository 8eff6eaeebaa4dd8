package shared

import (
	"context"
	"net/http"
	"strings"
)

// PrincipalHeader carries the caller identity asserted by the upstream gateway.
const PrincipalHeader = "X-Ledger-Principal"

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated caller in context.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the caller, or "" when the request is anonymous.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalContextKey{}).(string)
	return p
}

// PrincipalFromRequest reads and trims the principal header.
func PrincipalFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(PrincipalHeader))
}
