package audit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/transport"
)

type QueryAPI interface {
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
}

type Handler struct {
	*transport.BaseHandler
	Service QueryAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service QueryAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

type EntriesResponse struct {
	Entries []*Entry `json:"entries"`
	Count   int      `json:"count"`
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := FilterFromQuery(r)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	entries, err := h.Service.Query(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	h.WriteOK(w, http.StatusOK, EntriesResponse{Entries: entries, Count: len(entries)})
}

// Export streams the filtered trail as an attachment in ?format=csv|json.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.WriteAppError(w, internal.NewValidationFieldError("format", err.Error(), internal.ErrCodeValidationFailed))
		return
	}
	filter, err := FilterFromQuery(r)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	entries, err := h.Service.Query(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	name := fmt.Sprintf("audit-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := Write(w, format, entries); err != nil {
		h.Logger.Error("failed to write audit export", "format", format, "error", err)
	}
}

// FilterFromQuery reads user_id, action, entity_type, from, to (RFC 3339)
// and limit from the query string.
func FilterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{
		UserID:     q.Get("user_id"),
		Action:     Action(q.Get("action")),
		EntityType: EntityType(q.Get("entity_type")),
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Filter{}, internal.NewValidationFieldError(p.name, "must be an RFC 3339 timestamp", internal.ErrCodeValidationFailed)
		}
		*p.dst = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Filter{}, internal.NewValidationFieldError("limit", "must be a non-negative integer", internal.ErrCodeValidationFailed)
		}
		f.Limit = n
	}
	return f, nil
}
