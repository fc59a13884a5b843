package auth

import (
	"context"
	"net/http"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/frahmantamala/access-control/pkg/logger"
)

type ServiceAPI interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, p *Principal) error
	Authenticate(ctx context.Context, token string) (*Principal, error)
	Status(ctx context.Context, p *Principal) SessionResponse
	Activity(ctx context.Context, p *Principal) (SessionResponse, error)
	Refresh(ctx context.Context, p *Principal) (SessionResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}

	resp, err := h.Service.Login(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	if err := h.Service.Logout(r.Context(), p); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	h.WriteOK(w, http.StatusOK, h.Service.Status(r.Context(), p))
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	resp, err := h.Service.Activity(r.Context(), p)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	resp, err := h.Service.Refresh(r.Context(), p)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, resp)
}

// AuthMiddleware resolves the bearer token into a principal. Mutating requests
// count as user activity.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Info("auth middleware: missing authorization token")
			h.WriteAppError(w, internal.ErrSessionNotFound)
			return
		}

		p, err := h.Service.Authenticate(r.Context(), token)
		if err != nil {
			h.WriteAppError(w, err)
			return
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if _, err := p.Session.Touch(r.Context()); err != nil {
				h.WriteAppError(w, err)
				return
			}
		}

		ctx := ContextWithPrincipal(r.Context(), p)
		ctx = internal.ContextWithUserID(ctx, p.User.ID)
		ctx = logger.With(ctx, "user_id", p.User.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
