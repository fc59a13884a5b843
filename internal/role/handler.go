package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/access-control/internal/auth"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	List(ctx context.Context) ([]RoleResponse, error)
	Get(ctx context.Context, id string) (*rbac.Role, error)
	Create(ctx context.Context, actor events.Actor, req CreateRoleRequest) (*rbac.Role, error)
	Update(ctx context.Context, actor events.Actor, id string, req UpdateRoleRequest) (*rbac.Role, error)
	Delete(ctx context.Context, actor events.Actor, id, reassignTo string) (*DeleteRoleResponse, error)
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

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.List(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, RolesResponse{Roles: roles})
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, role)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	role, err := h.Service.Create(r.Context(), auth.ActorFromContext(r.Context()), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	role, err := h.Service.Update(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Delete(r.Context(), auth.ActorFromContext(r.Context()),
		chi.URLParam(r, "id"), r.URL.Query().Get("reassign_to"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteOK(w, http.StatusOK, resp)
}
