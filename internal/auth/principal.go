package auth

import (
	"context"

	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/session"
)

type principalKey struct{}

// Principal is the authenticated caller of one request.
type Principal struct {
	Token   string
	User    *rbac.User
	Ability *ability.Engine
	Session *session.Manager
}

// Actor identifies the principal in domain events.
func (p *Principal) Actor() events.Actor {
	if p == nil || p.User == nil {
		return events.Actor{}
	}
	return events.Actor{UserID: p.User.ID, Username: p.User.Username}
}

func (p *Principal) Can(action ability.Action, subject string) bool {
	return p != nil && p.Ability.Can(action, subject)
}

func (p *Principal) Cannot(action ability.Action, subject string) bool {
	return !p.Can(action, subject)
}

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// ActorFromContext returns the acting user of ctx, or the zero Actor for
// unauthenticated calls.
func ActorFromContext(ctx context.Context) events.Actor {
	p, _ := PrincipalFromContext(ctx)
	return p.Actor()
}
