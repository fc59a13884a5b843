package audit

import (
	"context"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/metrics"
	"github.com/oklog/ulid/v2"
)

type eventMapping struct {
	action Action
	entity EntityType
}

var eventMappings = map[string]eventMapping{
	events.EventTypeRoleCreated:     {ActionCreate, EntityRole},
	events.EventTypeRoleUpdated:     {ActionUpdate, EntityRole},
	events.EventTypeRoleDeleted:     {ActionDelete, EntityRole},
	events.EventTypeUserCreated:     {ActionCreate, EntityUser},
	events.EventTypeUserUpdated:     {ActionUpdate, EntityUser},
	events.EventTypeUserDeleted:     {ActionDelete, EntityUser},
	events.EventTypeUserRoleChanged: {ActionRoleChange, EntityUser},
	events.EventTypeSessionLogin:    {ActionLogin, EntitySession},
	events.EventTypeSessionLogout:   {ActionLogout, EntitySession},
}

// Recorder turns domain events into audit entries. Recording never fails from
// the caller's point of view: store errors are logged and counted.
type Recorder struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    time.Time
}

func NewRecorder(store Store, clk clock.Clock, logger *slog.Logger) *Recorder {
	if clk == nil {
		clk = clock.System()
	}
	return &Recorder{
		store:   store,
		clock:   clk,
		logger:  logger,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Subscribe attaches the recorder to every security event type on bus.
func (r *Recorder) Subscribe(bus *events.EventBus) {
	bus.Subscribe(r.Handle, events.SecurityEventTypes()...)
}

// Handle is an events.Handler. It always returns nil so a failed audit never
// fails the publisher.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	se, ok := event.(*events.SecurityEvent)
	if !ok {
		r.logger.Warn("ignoring non-security event", "event_type", event.EventType())
		return nil
	}
	mapping, ok := eventMappings[se.EventType()]
	if !ok {
		r.logger.Warn("no audit mapping for event", "event_type", se.EventType())
		return nil
	}

	entry := Entry{
		UserID:     se.Actor.UserID,
		Username:   se.Actor.Username,
		Action:     mapping.action,
		EntityType: mapping.entity,
		EntityID:   se.EntityID,
		EntityName: se.EntityName,
		Reason:     se.Reason,
		IPAddress:  se.IPAddress,
		UserAgent:  se.UserAgent,
	}
	for _, c := range se.Changes {
		entry.Changes = append(entry.Changes, Change{Field: c.Field, OldValue: c.OldValue, NewValue: c.NewValue})
	}
	r.Record(ctx, entry)
	return nil
}

// Record stamps e with a new id and timestamp and appends it. Timestamps are
// strictly increasing across calls on one Recorder.
func (r *Recorder) Record(ctx context.Context, e Entry) Entry {
	r.mu.Lock()
	now := r.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(r.last) {
		now = r.last.Add(time.Microsecond)
	}
	r.last = now
	e.ID = ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
	r.mu.Unlock()

	e.Timestamp = now
	if e.IPAddress == "" && e.UserAgent == "" {
		client := internal.ClientFromContext(ctx)
		e.IPAddress = client.IPAddress
		e.UserAgent = client.UserAgent
	}

	labels := []string{string(e.Action), string(e.EntityType)}
	if err := r.store.Append(ctx, &e); err != nil {
		metrics.AuditRecordFailures.WithLabelValues(labels...).Inc()
		r.logger.Error("failed to record audit entry",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err)
		return e
	}
	metrics.AuditRecorded.WithLabelValues(labels...).Inc()
	return e
}

// Query returns the entries matching every set field of filter, oldest first.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, internal.NewValidationFieldError("action", fmt.Sprintf("unknown action %q", filter.Action), internal.ErrCodeValidationFailed)
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, internal.NewValidationFieldError("entity_type", fmt.Sprintf("unknown entity type %q", filter.EntityType), internal.ErrCodeValidationFailed)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, internal.NewValidationFieldError("to", "to must not be before from", internal.ErrCodeValidationFailed)
	}
	entries, err := r.store.Query(ctx, filter)
	if err != nil {
		r.logger.Error("failed to query audit entries", "error", err)
		return nil, internal.NewInternalError("Failed to load audit entries", err)
	}
	return entries, nil
}
