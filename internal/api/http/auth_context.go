package httpapi

import (
	"context"

	"github.com/session-hub/session-hub/internal/domain/user"
)

type authContextKey string

const principalKey authContextKey = "principal"

func withPrincipal(ctx context.Context, p *user.Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey, p)
}

func principalFromContext(ctx context.Context) *user.Principal {
	if v, ok := ctx.Value(principalKey).(*user.Principal); ok {
		return v
	}
	return nil
}
