package auth

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionContext stores the authenticated session in ctx.
func WithSessionContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext returns the session stored by WithSessionContext.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// ActorFromContext returns the ActorRef of the session in ctx, or
// SystemActor when there is none.
func ActorFromContext(ctx context.Context, actorType string) ActorRef {
	session, ok := SessionFromContext(ctx)
	if !ok || session.Account == nil {
		return SystemActor
	}
	if actorType == "" {
		actorType = "account"
	}
	return ActorRef{ID: session.Account.ID.String(), Type: actorType}
}
