package rest

import (
	"context"

	"github.com/baechuer/teamup/internal/domain"
)

type ctxKeyAuth struct{}

type AuthContext struct {
	UserID string
	Role   string
}

func (a AuthContext) Actor() domain.Actor {
	return domain.Actor{UserID: a.UserID, Role: a.Role}
}

func withAuth(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, ctxKeyAuth{}, a)
}

func GetAuth(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(ctxKeyAuth{}).(AuthContext)
	if !ok || a.UserID == "" {
		return AuthContext{}, false
	}
	return a, true
}
