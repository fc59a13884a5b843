package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/frahmantamala/access-control/internal/audit"
	"github.com/jmoiron/sqlx"
)

type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

type auditRow struct {
	ID         string    `db:"id"`
	OccurredAt time.Time `db:"occurred_at"`
	UserID     string    `db:"user_id"`
	Username   string    `db:"username"`
	Action     string    `db:"action"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	EntityName string    `db:"entity_name"`
	Changes    []byte    `db:"changes"`
	Reason     string    `db:"reason"`
	IPAddress  string    `db:"ip_address"`
	UserAgent  string    `db:"user_agent"`
}

const insertAuditLog = `INSERT INTO audit_logs
	(id, occurred_at, user_id, username, action, entity_type, entity_id, entity_name, changes, reason, ip_address, user_agent)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	changes, err := json.Marshal(nonNilChanges(e.Changes))
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(insertAuditLog),
		e.ID, e.Timestamp.UTC(), e.UserID, e.Username, string(e.Action), string(e.EntityType),
		e.EntityID, e.EntityName, changes, e.Reason, e.IPAddress, e.UserAgent)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if !filter.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, filter.To.UTC())
	}

	var q strings.Builder
	q.WriteString(`SELECT id, occurred_at, user_id, username, action, entity_type, entity_id, entity_name,
	changes, reason, ip_address, user_agent FROM audit_logs`)
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	if filter.Limit > 0 {
		q.WriteString(" ORDER BY occurred_at DESC, id DESC LIMIT ?")
		args = append(args, filter.Limit)
	} else {
		q.WriteString(" ORDER BY occurred_at ASC, id ASC")
	}

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q.String()), args...); err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := &audit.Entry{
			ID:         row.ID,
			Timestamp:  row.OccurredAt.UTC(),
			UserID:     row.UserID,
			Username:   row.Username,
			Action:     audit.Action(row.Action),
			EntityType: audit.EntityType(row.EntityType),
			EntityID:   row.EntityID,
			EntityName: row.EntityName,
			Reason:     row.Reason,
			IPAddress:  row.IPAddress,
			UserAgent:  row.UserAgent,
		}
		if len(row.Changes) > 0 {
			if err := json.Unmarshal(row.Changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode changes of %s: %w", row.ID, err)
			}
			if len(e.Changes) == 0 {
				e.Changes = nil
			}
		}
		entries = append(entries, e)
	}
	if filter.Limit > 0 {
		slices.Reverse(entries)
	}
	return entries, nil
}

func nonNilChanges(c []audit.Change) []audit.Change {
	if c == nil {
		return []audit.Change{}
	}
	return c
}
