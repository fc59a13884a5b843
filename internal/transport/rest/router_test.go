package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/audit"
	"github.com/frahmantamala/access-control/internal/auth"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/core/rbac/memory"
	"github.com/frahmantamala/access-control/internal/guard"
	"github.com/frahmantamala/access-control/internal/permission"
	"github.com/frahmantamala/access-control/internal/role"
	"github.com/frahmantamala/access-control/internal/session"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/frahmantamala/access-control/internal/transport/rest"
	"github.com/frahmantamala/access-control/internal/transport/swagger"
	"github.com/frahmantamala/access-control/internal/user"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Success bool                  `json:"success"`
	Data    json.RawMessage       `json:"data"`
	Error   *internal.ResultError `json:"error"`
}

var _ = Describe("Router", func() {
	var (
		router   *chi.Mux
		registry *session.Registry
		auditLog *audit.MemoryStore
	)

	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		return string(h)
	}

	do := func(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.9:5555"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
			Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		}
		return rec, env
	}

	login := func(username, password string) string {
		rec, env := do(http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Username: username, Password: password})
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		var resp auth.LoginResponse
		Expect(json.Unmarshal(env.Data, &resp)).To(Succeed())
		Expect(resp.Token).NotTo(BeEmpty())
		return resp.Token
	}

	BeforeEach(func() {
		lg := logger.Discard()
		clk := clock.System()
		store := memory.New()
		store.PutPermissions(permission.Catalog...)
		store.PutRole(&rbac.Role{ID: "r-admin", Key: "super_admin", Name: "Super Admin", IsSystem: true, IsActive: true, IsAdmin: true,
			Permissions: []string{permission.AllManage}})
		store.PutRole(&rbac.Role{ID: "r-viewer", Key: "viewer", Name: "Viewer", IsActive: true,
			Permissions: []string{permission.UsersRead}})
		store.PutUser(&rbac.User{ID: "u-admin", Username: "admin", Email: "admin@example.com", FullName: "Admin",
			PasswordHash: hash("admin-password"), Status: rbac.UserStatusActive, RoleID: "r-admin"})
		store.PutUser(&rbac.User{ID: "u-viewer", Username: "viewer", Email: "viewer@example.com", FullName: "Viewer",
			PasswordHash: hash("viewer-password"), Status: rbac.UserStatusActive, RoleID: "r-viewer"})

		bus := events.NewEventBus(lg)
		auditLog = audit.NewMemoryStore()
		recorder := audit.NewRecorder(auditLog, clk, lg)
		recorder.Subscribe(bus)

		registry = session.NewRegistry(session.DefaultConfig(), session.NewMemoryStore(), clk, lg)
		authService := auth.NewService(store.Users(), store.Roles(), registry,
			auth.NewJWTTokenIssuer("0123456789abcdef0123456789abcdef", "access-control-test"),
			bus, clk, time.Hour, lg).WithBcryptCost(bcrypt.MinCost)
		authService.Subscribe(bus)

		permService := permission.NewService(store.Permissions(), lg)
		g := guard.New(store.Users(), store.Roles(), permService, lg)

		doc, err := swagger.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())

		base := transport.NewBaseHandler(lg)
		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Auth:        auth.NewHandler(base, authService),
			Authz:       auth.NewRBACAuthorization(lg),
			Users:       user.NewHandler(base, user.NewService(store.Users(), store.Roles(), g, bus, lg).WithBcryptCost(bcrypt.MinCost)),
			Roles:       role.NewHandler(base, role.NewService(store.Roles(), store.Users(), g, bus, lg)),
			Permissions: permission.NewHandler(base, permService),
			Audit:       audit.NewHandler(base, recorder),
			Health:      rest.NewHealthHandler(nil, nil),
			OpenAPI:     doc,
		}, rest.Options{AllowedOrigins: "*"}, lg)
	})

	AfterEach(func() {
		registry.Close()
	})

	It("serves the health check and the OpenAPI document", func() {
		rec, _ := do(http.MethodGet, "/api/v1/health", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec, _ = do(http.MethodGet, "/openapi.json", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("/api/v1/auth/login"))
	})

	It("rejects protected routes without a session", func() {
		rec, env := do(http.MethodGet, "/api/v1/users", "", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(env.Error.Code).To(Equal(internal.ErrCodeSessionNotFound))
	})

	It("rejects bad credentials without revealing which part was wrong", func() {
		_, unknown := do(http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Username: "nobody", Password: "whatever-pw"})
		_, wrong := do(http.MethodPost, "/api/v1/auth/login", "", auth.LoginRequest{Username: "admin", Password: "whatever-pw"})
		Expect(unknown.Error.Code).To(Equal(internal.ErrCodeInvalidCredentials))
		Expect(wrong.Error).To(Equal(unknown.Error))
	})

	It("lets an admin manage users and records the trail", func() {
		token := login("admin", "admin-password")

		rec, _ := do(http.MethodGet, "/api/v1/users", token, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec, _ = do(http.MethodPost, "/api/v1/users", token, user.CreateUserRequest{
			Username: "carol", Email: "carol@example.com", FullName: "Carol", Password: "carol-password", RoleID: "r-viewer",
		})
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

		rec, env := do(http.MethodGet, "/api/v1/audit", token, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var entries audit.EntriesResponse
		Expect(json.Unmarshal(env.Data, &entries)).To(Succeed())
		actions := make([]audit.Action, 0, len(entries.Entries))
		for _, e := range entries.Entries {
			actions = append(actions, e.Action)
		}
		Expect(actions).To(ContainElements(audit.ActionLogin, audit.ActionCreate))
	})

	It("enforces abilities per route", func() {
		token := login("viewer", "viewer-password")

		rec, _ := do(http.MethodGet, "/api/v1/users", token, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec, env := do(http.MethodPost, "/api/v1/roles", token, map[string]any{"name": "x", "key": "x", "permissions": []string{"users.read"}})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(env.Error.Code).To(Equal(internal.ErrCodeForbidden))

		rec, _ = do(http.MethodGet, "/api/v1/audit/export", token, nil)
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})

	It("ends the session on logout", func() {
		token := login("viewer", "viewer-password")

		rec, _ := do(http.MethodPost, "/api/v1/auth/logout", token, nil)
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		rec, env := do(http.MethodGet, "/api/v1/auth/session", token, nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(env.Error.Code).To(Equal(internal.ErrCodeSessionNotFound))
	})

	It("revokes the live session of a deactivated user", func() {
		adminToken := login("admin", "admin-password")
		viewerToken := login("viewer", "viewer-password")

		rec, _ := do(http.MethodPatch, "/api/v1/users/u-viewer/deactivate", adminToken, nil)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

		rec, _ = do(http.MethodGet, "/api/v1/users", viewerToken, nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("exports the audit trail as CSV", func() {
		token := login("admin", "admin-password")

		rec, _ := do(http.MethodGet, "/api/v1/audit/export?format=csv", token, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/csv"))
		Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring("attachment"))
		Expect(rec.Body.String()).To(HavePrefix(`"Timestamp"`))
	})
})
