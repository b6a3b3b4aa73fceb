package api

import (
	"context"

	"shopifyapp/internal/session"
	"shopifyapp/internal/shop"
)

type ctxKey string

const (
	ctxKeyShop        ctxKey = "shop"
	ctxKeyShopSession ctxKey = "shop_session"
)

func WithShop(ctx context.Context, s *shop.Shop) context.Context {
	return context.WithValue(ctx, ctxKeyShop, s)
}

// ShopFromContext returns the shop a guard authenticated, or nil.
func ShopFromContext(ctx context.Context) *shop.Shop {
	v := ctx.Value(ctxKeyShop)
	if v == nil {
		return nil
	}
	s, _ := v.(*shop.Shop)
	return s
}

func WithShopSession(ctx context.Context, ss *session.ShopSession) context.Context {
	return context.WithValue(ctx, ctxKeyShopSession, ss)
}

func ShopSessionFromContext(ctx context.Context) *session.ShopSession {
	ss, _ := ctx.Value(ctxKeyShopSession).(*session.ShopSession)
	return ss
}
