// Package audit keeps the append-only trail of security-relevant changes.
package audit

import (
	"context"
	"time"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionLogin      Action = "login"
	ActionLogout     Action = "logout"
	ActionRoleChange Action = "role_change"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionRoleChange:
		return true
	}
	return false
}

type EntityType string

const (
	EntityUser       EntityType = "user"
	EntityRole       EntityType = "role"
	EntityPermission EntityType = "permission"
	EntitySession    EntityType = "session"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityUser, EntityRole, EntityPermission, EntitySession:
		return true
	}
	return false
}

// Change is one field-level difference.
type Change struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Entry is an immutable audit record.
type Entry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Action     Action     `json:"action"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	EntityName string     `json:"entity_name"`
	Changes    []Change   `json:"changes,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
}

// Filter narrows a query. Zero fields match everything; set fields are
// combined with AND. From and To are inclusive. A positive Limit keeps the
// most recent matches; results are always returned oldest first.
type Filter struct {
	UserID     string     `json:"user_id,omitempty"`
	Action     Action     `json:"action,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	From       time.Time  `json:"from,omitempty"`
	To         time.Time  `json:"to,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

func (f Filter) Match(e *Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Store persists entries. It only ever appends.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
}
