package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleCreated     = "role.created"
	EventTypeRoleUpdated     = "role.updated"
	EventTypeRoleDeleted     = "role.deleted"
	EventTypeUserCreated     = "user.created"
	EventTypeUserUpdated     = "user.updated"
	EventTypeUserDeleted     = "user.deleted"
	EventTypeUserRoleChanged = "user.role_changed"
	EventTypeSessionLogin    = "session.login"
	EventTypeSessionLogout   = "session.logout"
)

// SecurityEventTypes lists every event type the audit trail subscribes to.
func SecurityEventTypes() []string {
	return []string{
		EventTypeRoleCreated,
		EventTypeRoleUpdated,
		EventTypeRoleDeleted,
		EventTypeUserCreated,
		EventTypeUserUpdated,
		EventTypeUserDeleted,
		EventTypeUserRoleChanged,
		EventTypeSessionLogin,
		EventTypeSessionLogout,
	}
}

// Actor identifies who performed the change.
type Actor struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

type SecurityEvent struct {
	BaseEvent
	Actor      Actor         `json:"actor"`
	EntityID   string        `json:"entity_id"`
	EntityName string        `json:"entity_name"`
	Changes    []FieldChange `json:"changes,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	IPAddress  string        `json:"ip_address,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
}

func NewSecurityEvent(eventType string, actor Actor, entityID, entityName string) *SecurityEvent {
	return &SecurityEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"actor_id":    actor.UserID,
				"entity_id":   entityID,
				"entity_name": entityName,
			},
		},
		Actor:      actor,
		EntityID:   entityID,
		EntityName: entityName,
	}
}

func (e *SecurityEvent) WithChanges(changes ...FieldChange) *SecurityEvent {
	e.Changes = append(e.Changes, changes...)
	return e
}

func (e *SecurityEvent) WithReason(reason string) *SecurityEvent {
	e.Reason = reason
	if reason != "" {
		e.Data["reason"] = reason
	}
	return e
}

func (e *SecurityEvent) WithClient(ip, userAgent string) *SecurityEvent {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}

// Diff appends a change when old and new differ.
func (e *SecurityEvent) Diff(field, oldValue, newValue string) *SecurityEvent {
	if oldValue != newValue {
		e.Changes = append(e.Changes, FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
	}
	return e
}
