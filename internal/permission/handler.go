package permission

import (
	"context"
	"net/http"

	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context) ([]*rbac.Permission, error)
	GroupByModule(ctx context.Context) (map[string][]*rbac.Permission, error)
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

type PermissionsResponse struct {
	Permissions []*rbac.Permission            `json:"permissions"`
	Modules     map[string][]*rbac.Permission `json:"modules,omitempty"`
}

// ListPermissions returns the catalog; ?grouped=true adds the per-module view.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.List(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	resp := PermissionsResponse{Permissions: perms}
	if r.URL.Query().Get("grouped") == "true" {
		grouped, err := h.Service.GroupByModule(r.Context())
		if err != nil {
			h.WriteAppError(w, err)
			return
		}
		resp.Modules = grouped
	}
	h.WriteOK(w, http.StatusOK, resp)
}
