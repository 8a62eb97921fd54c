package api

import (
	"context"
	"time"

	"github.com/shaj13/go-guardian/auth"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

type userKey struct{}

// WithUser stores the authenticated caller on ctx
func WithUser(ctx context.Context, info auth.Info) context.Context {
	return context.WithValue(ctx, userKey{}, info)
}

// UserFromContext returns the authenticated caller, or nil
func UserFromContext(ctx context.Context) auth.Info {
	info, _ := ctx.Value(userKey{}).(auth.Info)
	return info
}
