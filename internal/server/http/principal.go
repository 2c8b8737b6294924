package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/and161185/flasky/internal/model"
)

type ctxKey string

const principalKey ctxKey = "flasky.principal"

// WithPrincipal stores the authenticated principal in context.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the principal; Anonymous when none was stored.
func PrincipalFromCtx(ctx context.Context) model.Principal {
	p, ok := ctx.Value(principalKey).(model.Principal)
	if !ok {
		return model.Anonymous
	}
	return p
}

// credentials extracts identity and secret from Basic auth or a bearer token.
// A bearer token is returned as identity with an empty secret.
func credentials(r *http.Request) (identity, secret string) {
	if user, pass, ok := r.BasicAuth(); ok {
		return user, pass
	}
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):]), ""
	}
	return "", ""
}
