package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/auth"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/session"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/frahmantamala/access-control/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubService struct {
	auth.ServiceAPI
	principal *auth.Principal
	err       error
}

func (s *stubService) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

func errorCode(rec *httptest.ResponseRecorder) internal.ErrorCode {
	var body struct {
		Error *internal.ResultError `json:"error"`
	}
	Expect(json.NewDecoder(rec.Body).Decode(&body)).To(Succeed())
	Expect(body.Error).NotTo(BeNil())
	return body.Error.Code
}

var _ = Describe("Handler", func() {
	var (
		stub    *stubService
		handler *auth.Handler
		authz   *auth.RBACAuthorization
		reached bool
		next    http.Handler
	)

	BeforeEach(func() {
		reached = false
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			p, ok := auth.PrincipalFromContext(r.Context())
			Expect(ok).To(BeTrue())
			Expect(internal.UserIDFromContext(r.Context())).To(Equal(p.User.ID))
			w.WriteHeader(http.StatusNoContent)
		})
		stub = &stubService{principal: &auth.Principal{
			Token:   "t",
			User:    &rbac.User{ID: "u1", Username: "alice"},
			Ability: ability.FromKeys([]string{"users.read"}),
			Session: session.NewManager(session.DefaultConfig(), session.NewMemoryStore(), nil, logger.Discard()),
		}}
		handler = auth.NewHandler(transport.NewBaseHandler(logger.Discard()), stub)
		authz = auth.NewRBACAuthorization(logger.Discard())
	})

	serve := func(h http.Handler, method, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/users", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	Describe("AuthMiddleware", func() {
		It("rejects a request without a bearer token", func() {
			rec := serve(handler.AuthMiddleware(next), http.MethodGet, "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorCode(rec)).To(Equal(internal.ErrCodeSessionNotFound))
			Expect(reached).To(BeFalse())
		})

		It("reports an expired session", func() {
			stub.err = internal.ErrSessionExpired
			rec := serve(handler.AuthMiddleware(next), http.MethodGet, "Bearer t")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(errorCode(rec)).To(Equal(internal.ErrCodeSessionExpired))
		})

		It("puts the principal into the request context", func() {
			rec := serve(handler.AuthMiddleware(next), http.MethodGet, "Bearer t")
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(reached).To(BeTrue())
		})
	})

	Describe("RBACAuthorization", func() {
		It("lets a permitted action through", func() {
			h := handler.AuthMiddleware(authz.Middleware(ability.Read, "users")(next))
			rec := serve(h, http.MethodGet, "Bearer t")
			Expect(rec.Code).To(Equal(http.StatusNoContent))
		})

		It("forbids an action outside the principal's abilities", func() {
			h := handler.AuthMiddleware(authz.Middleware(ability.Delete, "users")(next))
			rec := serve(h, http.MethodGet, "Bearer t")
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(rec)).To(Equal(internal.ErrCodeForbidden))
			Expect(reached).To(BeFalse())
		})

		It("requires a principal", func() {
			rec := serve(authz.Middleware(ability.Read, "users")(next), http.MethodGet, "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
