package service

import (
	"context"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by the session
// middleware, if any.
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*models.Principal)
	return p, ok && p != nil
}

// CurrentPrincipal is PrincipalFromContext for handlers that require one.
func CurrentPrincipal(ctx context.Context) (*models.Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, errors.ErrNotAuthenticated
	}
	return p, nil
}
