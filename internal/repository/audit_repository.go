package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliyamo/cafeteria-procurement/internal/model"
)

// AuditRepo appends to and reads from the `audit_logs` table.  There is no
// update or delete path.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// AuditFilter narrows List.  Zero values mean "any".
type AuditFilter struct {
	UserID *uint64
	Action model.Action
	Limit  int
	Offset int
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// Insert writes e and stores the generated id back into it.
func (r *AuditRepo) Insert(ctx context.Context, e *model.AuditLogEntry) error {
	oldJSON, err := marshalSnapshot(e.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newJSON, err := marshalSnapshot(e.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	var uid sql.NullInt64
	if e.UserID != nil {
		uid = sql.NullInt64{Int64: int64(*e.UserID), Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, action, resource, resource_id, old_value, new_value, ip_address, user_agent, request_id, created_at) "+
			"VALUES (?,?,?,?,?,?,?,?,?,?)",
		uid, string(e.Action), e.Resource, nullString(e.ResourceID), oldJSON, newJSON,
		e.IPAddress, e.UserAgent, e.RequestID, e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = uint64(id)
	}
	return nil
}

// List returns entries newest first.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter) ([]model.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id=?")
		args = append(args, *f.UserID)
	}
	if f.Action != "" {
		where = append(where, "action=?")
		args = append(args, string(f.Action))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var q strings.Builder
	q.WriteString("SELECT id,user_id,action,resource,resource_id,old_value,new_value,ip_address,user_agent,request_id,created_at FROM audit_logs")
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY id DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AuditLogEntry{}
	for rows.Next() {
		var (
			e          model.AuditLogEntry
			uid        sql.NullInt64
			action     string
			resourceID sql.NullString
			oldJSON    []byte
			newJSON    []byte
		)
		if err := rows.Scan(&e.ID, &uid, &action, &e.Resource, &resourceID, &oldJSON, &newJSON,
			&e.IPAddress, &e.UserAgent, &e.RequestID, &e.Timestamp); err != nil {
			return nil, err
		}
		if uid.Valid {
			id := uint64(uid.Int64)
			e.UserID = &id
		}
		e.Action = model.Action(action)
		e.ResourceID = stringPtr(resourceID)
		e.OldValue = unmarshalSnapshot(oldJSON)
		e.NewValue = unmarshalSnapshot(newJSON)
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalSnapshot(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	return v
}
