package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/permission"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/frahmantamala/access-control/pkg/metrics"
)

// RBACAuthorization gates routes on the abilities of the request principal.
type RBACAuthorization struct {
	*transport.BaseHandler
}

func NewRBACAuthorization(logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{BaseHandler: transport.NewBaseHandler(logger)}
}

// Check runs next only when the principal may perform action on subject.
func (ra *RBACAuthorization) Check(next http.HandlerFunc, action ability.Action, subject string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			ra.Logger.WarnContext(r.Context(), "authorization check failed: no principal in context")
			ra.WriteAppError(w, internal.ErrSessionNotFound)
			return
		}

		if p.Cannot(action, subject) {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", p.User.ID,
				"action", action,
				"subject", subject)
			metrics.GuardDenials.WithLabelValues("ability", string(internal.ErrCodeForbidden)).Inc()
			ra.WriteAppError(w, internal.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(action ability.Action, subject string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, action, subject)
	}
}

// RequirePermission gates on a raw permission key, for keys whose verb has no
// ability equivalent. A manage grant on the key's module also satisfies it.
func (ra *RBACAuthorization) RequirePermission(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				ra.WriteAppError(w, internal.ErrSessionNotFound)
				return
			}
			module, _ := permission.ParseKey(key)
			if !p.Ability.Has(key) && p.Cannot(ability.Manage, module) {
				ra.Logger.WarnContext(r.Context(), "access denied: missing permission", "user_id", p.User.ID, "permission", key)
				metrics.GuardDenials.WithLabelValues("permission", string(internal.ErrCodeForbidden)).Inc()
				ra.WriteAppError(w, internal.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
