package model

import "time"

// Action enumerates audit event kinds.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionUpdate        Action = "UPDATE"
	ActionDelete        Action = "DELETE"
	ActionLogin         Action = "LOGIN"
	ActionLogout        Action = "LOGOUT"
	ActionLoginFailed   Action = "LOGIN_FAILED"
	ActionPasswordReset Action = "PASSWORD_RESET"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionLoginFailed, ActionPasswordReset:
		return true
	}
	return false
}

// AuditLogEntry mirrors the append-only `audit_logs` table.  UserID is nil
// for system events and for failures against unknown accounts.  OldValue and
// NewValue hold redacted snapshots.
type AuditLogEntry struct {
	ID         uint64    `json:"id"`
	UserID     *uint64   `json:"userId"`
	Action     Action    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID *string   `json:"resourceId"`
	OldValue   any       `json:"oldValue"`
	NewValue   any       `json:"newValue"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	RequestID  string    `json:"requestId"`
	Timestamp  time.Time `json:"timestamp"`
}
