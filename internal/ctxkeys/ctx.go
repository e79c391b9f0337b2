package ctxkeys

import (
	"context"

	"github.com/templui/accountable/internal/config"
	"github.com/templui/accountable/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	UserKey      contextKey = "user"
	ConfigKey    contextKey = "config"
	CSRFTokenKey contextKey = "csrf_token"
	BearerKey    contextKey = "bearer"
)

func User(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

func Config(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(ConfigKey).(*config.Config)
	return cfg
}

func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ConfigKey, cfg)
}

func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CSRFTokenKey, token)
}

// ViaBearer reports whether the request authenticated with an
// Authorization header instead of the cookie.
func ViaBearer(ctx context.Context) bool {
	v, _ := ctx.Value(BearerKey).(bool)
	return v
}

func WithBearer(ctx context.Context) context.Context {
	return context.WithValue(ctx, BearerKey, true)
}
