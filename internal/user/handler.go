package user

import (
	"context"
	"net/http"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/auth"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	List(ctx context.Context) ([]UserResponse, error)
	Get(ctx context.Context, id string) (*UserResponse, error)
	Create(ctx context.Context, actor events.Actor, req CreateUserRequest) (*UserResponse, error)
	Update(ctx context.Context, actor events.Actor, id string, req UpdateUserRequest) (*UserResponse, error)
	Delete(ctx context.Context, actor events.Actor, id string) error
	Deactivate(ctx context.Context, actor events.Actor, id string) (*UserResponse, error)
	ChangeRole(ctx context.Context, actor events.Actor, id string, req ChangeRoleRequest) (*UserResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	u, err := h.Service.Get(r.Context(), p.User.ID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, u)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.List(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, UsersResponse{Users: users})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, u)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	u, err := h.Service.Create(r.Context(), auth.ActorFromContext(r.Context()), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusCreated, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	u, err := h.Service.Update(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, u)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.Delete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.Deactivate(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, u)
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	u, err := h.Service.ChangeRole(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, u)
}
