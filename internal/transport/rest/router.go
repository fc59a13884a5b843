package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/audit"
	"github.com/frahmantamala/access-control/internal/auth"
	"github.com/frahmantamala/access-control/internal/permission"
	"github.com/frahmantamala/access-control/internal/role"
	"github.com/frahmantamala/access-control/internal/transport/middleware"
	"github.com/frahmantamala/access-control/internal/transport/swagger"
	"github.com/frahmantamala/access-control/internal/user"
	"github.com/frahmantamala/access-control/pkg/metrics"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
)

// Handlers are the HTTP handlers wired into the router. Nil handlers leave
// their routes unregistered.
type Handlers struct {
	Auth        *auth.Handler
	Authz       *auth.RBACAuthorization
	Users       *user.Handler
	Roles       *role.Handler
	Permissions *permission.Handler
	Audit       *audit.Handler
	Health      *HealthHandler
	OpenAPI     *openapi3.T
}

type Options struct {
	AllowedOrigins string
	LoginRateLimit int
	Production     bool
	MetricsEnabled bool
	MetricsPath    string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options, logger *slog.Logger) {
	// Apply global middleware
	router.Use(middleware.BindLogger(logger))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.SecureHeaders(opts.Production))
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.ClientContext)
	if opts.MetricsEnabled {
		router.Use(metrics.Instrument)
		router.Handle(opts.MetricsPath, metrics.Handler())
	}

	if h.OpenAPI != nil {
		router.Get("/openapi.json", swagger.SpecHandler(h.OpenAPI))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(logger))

		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Auth == nil {
			return
		}

		r.With(loginLimiter(opts.LoginRateLimit)).Post("/auth/login", h.Auth.Login)

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Post("/auth/logout", h.Auth.Logout)
			pr.Get("/auth/session", h.Auth.Session)
			pr.Post("/auth/activity", h.Auth.Activity)
			pr.Post("/auth/refresh", h.Auth.Refresh)

			can := h.Authz.Middleware

			if h.Users != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/me", h.Users.GetCurrentUser)
					ur.With(can(ability.Read, permission.ModuleUsers)).Get("/", h.Users.ListUsers)
					ur.With(can(ability.Create, permission.ModuleUsers)).Post("/", h.Users.CreateUser)
					ur.With(can(ability.Read, permission.ModuleUsers)).Get("/{id}", h.Users.GetUser)
					ur.With(can(ability.Update, permission.ModuleUsers)).Put("/{id}", h.Users.UpdateUser)
					ur.With(can(ability.Delete, permission.ModuleUsers)).Delete("/{id}", h.Users.DeleteUser)
					ur.With(can(ability.Update, permission.ModuleUsers)).Patch("/{id}/role", h.Users.ChangeRole)
					ur.With(can(ability.Update, permission.ModuleUsers)).Patch("/{id}/deactivate", h.Users.DeactivateUser)
				})
			}

			if h.Roles != nil {
				pr.Route("/roles", func(rr chi.Router) {
					rr.With(can(ability.Read, permission.ModuleRoles)).Get("/", h.Roles.ListRoles)
					rr.With(can(ability.Create, permission.ModuleRoles)).Post("/", h.Roles.CreateRole)
					rr.With(can(ability.Read, permission.ModuleRoles)).Get("/{id}", h.Roles.GetRole)
					rr.With(can(ability.Update, permission.ModuleRoles)).Put("/{id}", h.Roles.UpdateRole)
					rr.With(can(ability.Delete, permission.ModuleRoles)).Delete("/{id}", h.Roles.DeleteRole)
				})
			}

			if h.Permissions != nil {
				pr.With(can(ability.Read, permission.ModulePermissions)).Get("/permissions", h.Permissions.ListPermissions)
			}

			if h.Audit != nil {
				pr.With(can(ability.Read, permission.ModuleAudit)).Get("/audit", h.Audit.ListEntries)
				pr.With(h.Authz.RequirePermission(permission.AuditExport)).Get("/audit/export", h.Audit.Export)
			}
		})
	})
}

func loginLimiter(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}
