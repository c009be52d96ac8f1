package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cafeteria-procurement/internal/model"
)

const userColumns = "id,email,password_hash,name,role,refresh_token,password_reset_token,password_reset_expires," +
	"failed_login_attempts,lockout_until,last_login,is_active,created_at,updated_at"

// mysqlDuplicateEntry is the server error number for unique index violations.
const mysqlDuplicateEntry = 1062

// UserRepo is the credential store backed by the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u and returns its ID.  u.PasswordHash must already be hashed.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, role, refresh_token, is_active) VALUES (?,?,?,?,?,?)",
		NormalizeEmail(u.Email), u.PasswordHash, u.Name, u.Role, nullString(u.RefreshToken), u.IsActive)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByResetTokenHash fetches the user holding a pending reset token.
func (r *UserRepo) GetByResetTokenHash(ctx context.Context, tokenHash string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE password_reset_token=? LIMIT 1", tokenHash)
}

// SaveLoginState persists the lockout counters.  lastLogin is only written
// when non-nil.
func (r *UserRepo) SaveLoginState(ctx context.Context, id uint64, failedAttempts int, lockoutUntil, lastLogin *time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=?, lockout_until=?, last_login=COALESCE(?, last_login) WHERE id=?",
		failedAttempts, nullTime(lockoutUntil), nullTime(lastLogin), id)
	return err
}

// SetRefreshToken overwrites the single live refresh token; nil clears it.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id uint64, token *string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET refresh_token=? WHERE id=?", nullString(token), id)
	return err
}

// SetResetToken stores the hash and expiry of a pending reset token.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, tokenHash string, expires time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_reset_token=?, password_reset_expires=? WHERE id=?",
		tokenHash, expires.UTC(), id)
	return err
}

// CompleteReset sets a new password hash and clears the reset token and the
// refresh token in one statement.  The token hash is part of the WHERE
// clause so two concurrent consumers cannot both succeed.
func (r *UserRepo) CompleteReset(ctx context.Context, id uint64, tokenHash, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, password_reset_token=NULL, password_reset_expires=NULL, refresh_token=NULL "+
			"WHERE id=? AND password_reset_token=?",
		passwordHash, id, tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	var (
		u            model.User
		refresh      sql.NullString
		resetToken   sql.NullString
		resetExpires sql.NullTime
		lockoutUntil sql.NullTime
		lastLogin    sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &refresh, &resetToken, &resetExpires,
		&u.FailedLoginAttempts, &lockoutUntil, &lastLogin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.RefreshToken = stringPtr(refresh)
	u.PasswordResetToken = stringPtr(resetToken)
	u.PasswordResetExpires = timePtr(resetExpires)
	u.LockoutUntil = timePtr(lockoutUntil)
	u.LastLogin = timePtr(lastLogin)
	return u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
