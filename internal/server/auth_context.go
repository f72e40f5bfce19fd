package server

import (
	"context"

	"famvault/internal/models"
)

type authContextKey struct{}

type authPrincipal struct {
	TokenID   string
	Principal models.Principal
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}

// principalFromContext returns the caller, or nil when anonymous.
func principalFromContext(ctx context.Context) *models.Principal {
	principal, ok := authPrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	p := principal.Principal
	return &p
}
