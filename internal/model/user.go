package model

import "time"

// Role names stored in users.role and carried in token claims.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// DefaultRole is assigned on self-registration; elevated roles are granted
// by an administrator through the user management routers.
const DefaultRole = RoleEmployee

// User mirrors the `users` table.  PasswordHash, RefreshToken and
// PasswordResetToken never leave the process; handlers respond with
// PublicUser instead.
//
// Fields:
//
//	RefreshToken         – most recently issued refresh token, nil after logout.
//	PasswordResetToken   – SHA‑256 hex of the pending reset token.
//	PasswordResetExpires – set together with PasswordResetToken.
//	FailedLoginAttempts  – consecutive failures while unlocked.
//	LockoutUntil         – account rejects logins until this instant.
//	IsActive             – soft-delete flag.
type User struct {
	ID                   uint64
	Email                string
	PasswordHash         string
	Name                 string
	Role                 string
	RefreshToken         *string
	PasswordResetToken   *string
	PasswordResetExpires *time.Time
	FailedLoginAttempts  int
	LockoutUntil         *time.Time
	LastLogin            *time.Time
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PublicUser is the sanitized projection returned to clients.
type PublicUser struct {
	ID        uint64     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Public strips every credential field from the record.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Principal is the authenticated identity decoded from an access token.
type Principal struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Privileged reports whether the principal may see records owned by others.
func (p Principal) Privileged() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}
