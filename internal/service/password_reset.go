package service

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/audit"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/queue"
	"github.com/iliyamo/cafeteria-procurement/internal/repository"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

const (
	resetTokenBytes   = 32
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcrypt input limit
)

// ErrWeakPassword is returned when a new password fails CheckPasswordPolicy.
var ErrWeakPassword = &Error{
	Kind:    KindValidation,
	Message: "Password must be at least 8 characters and contain upper, lower, digit and special characters",
}

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
var ErrPasswordTooLong = &Error{
	Kind:    KindValidation,
	Message: "Password must be at most 72 bytes",
}

// CheckPasswordPolicy enforces the password strength rule shared by
// registration and reset.
func CheckPasswordPolicy(pw string) error {
	if len(pw) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	if len(pw) < minPasswordLength {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

// RequestReset issues a reset token for email when it belongs to an active
// account.  The result is the same whether or not the account exists; the
// plaintext token only leaves through the notifier.
func (s *AuthService) RequestReset(ctx context.Context, email string, meta audit.Meta) error {
	email = repository.NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug("reset requested for unknown email", zap.String("request_id", meta.RequestID))
			return nil
		}
		return internal("lookup user", err)
	}
	if !u.IsActive {
		return nil
	}

	raw, err := utils.RandomHex(resetTokenBytes)
	if err != nil {
		return internal("generate reset token", err)
	}
	expires := s.now().UTC().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, u.ID, utils.HashToken(raw), expires); err != nil {
		return internal("store reset token", err)
	}

	s.record(ctx, model.ActionUpdate, "user", &u.ID, &u.ID, nil,
		map[string]any{"passwordResetExpires": expires}, meta)

	if s.notifier == nil {
		s.log.Warn("no reset notifier configured; token not delivered", zap.Uint64("user_id", u.ID))
		return nil
	}
	ev := queue.PasswordResetRequested{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Token:     raw,
		ExpiresAt: expires,
		RequestID: meta.RequestID,
	}
	if err := s.notifier.NotifyPasswordReset(ctx, ev); err != nil {
		s.log.Error("reset notification failed", zap.Uint64("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// ConsumeReset sets a new password for the holder of token.  A token works
// once; on success every session of the user is revoked.
func (s *AuthService) ConsumeReset(ctx context.Context, token, newPassword string, meta audit.Meta) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrResetTokenInvalid
	}
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return err
	}

	tokenHash := utils.HashToken(token)
	u, err := s.users.GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return internal("lookup reset token", err)
	}
	if u.PasswordResetExpires == nil || !u.PasswordResetExpires.After(s.now()) {
		return ErrResetTokenExpired
	}

	defer s.lockUser(u.ID)()

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal("hash password", err)
	}
	if err := s.users.CompleteReset(ctx, u.ID, tokenHash, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return internal("complete reset", err)
	}

	s.record(ctx, model.ActionPasswordReset, "user", &u.ID, &u.ID, nil, nil, meta)
	s.invalidate(ctx)
	return nil
}
