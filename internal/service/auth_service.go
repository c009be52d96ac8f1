// Package service implements the session lifecycle: registration, login
// with progressive lockout, refresh-token rotation, logout and the password
// reset flow.  Every operation returns a *Error so callers can branch on
// Kind instead of on messages.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/audit"
	"github.com/iliyamo/cafeteria-procurement/internal/cache"
	"github.com/iliyamo/cafeteria-procurement/internal/lockout"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/queue"
	"github.com/iliyamo/cafeteria-procurement/internal/repository"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

// UserStore is the credential store.  repository.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string) (model.User, error)
	SaveLoginState(ctx context.Context, id uint64, failedAttempts int, lockoutUntil, lastLogin *time.Time) error
	SetRefreshToken(ctx context.Context, id uint64, token *string) error
	SetResetToken(ctx context.Context, id uint64, tokenHash string, expires time.Time) error
	CompleteReset(ctx context.Context, id uint64, tokenHash, passwordHash string) error
}

// AuditRecorder receives audit entries.  audit.Recorder implements it.
type AuditRecorder interface {
	Record(ctx context.Context, e model.AuditLogEntry)
}

// CacheInvalidator is notified after user mutations.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string) (int64, error)
}

// ResetNotifier delivers plaintext reset tokens out of band.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error
}

// Deps wires an AuthService.  Audit, Cache and Notifier are optional.
type Deps struct {
	Users    UserStore
	Hasher   *utils.Hasher
	Tokens   *utils.TokenIssuer
	Lockout  lockout.Policy
	ResetTTL time.Duration
	Audit    AuditRecorder
	Cache    CacheInvalidator
	Notifier ResetNotifier
	Log      *zap.Logger
	Now      func() time.Time
}

// AuthService is the session manager.
type AuthService struct {
	users    UserStore
	hasher   *utils.Hasher
	tokens   *utils.TokenIssuer
	policy   lockout.Policy
	resetTTL time.Duration
	audit    AuditRecorder
	cache    CacheInvalidator
	notifier ResetNotifier
	log      *zap.Logger
	now      func() time.Time
	locks    keyedMutex
}

const defaultResetTTL = 60 * time.Minute

func NewAuthService(d Deps) *AuthService {
	if d.Users == nil || d.Hasher == nil || d.Tokens == nil {
		panic("nil dependency passed to NewAuthService")
	}
	s := &AuthService{
		users:    d.Users,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		policy:   lockout.NewPolicy(d.Lockout.Threshold, d.Lockout.Duration),
		resetTTL: d.ResetTTL,
		audit:    d.Audit,
		cache:    d.Cache,
		notifier: d.Notifier,
		log:      d.Log,
		now:      d.Now,
	}
	if s.resetTTL <= 0 {
		s.resetTTL = defaultResetTTL
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   model.PublicUser `json:"user"`
	Tokens utils.TokenPair  `json:"tokens"`
}

// Register creates an employee account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta audit.Meta) (AuthResult, error) {
	email := repository.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" || in.Name == "" {
		return AuthResult{}, &Error{Kind: KindValidation, Message: "name, email and password are required"}
	}
	if err := CheckPasswordPolicy(in.Password); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, internal("lookup user", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, internal("hash password", err)
	}
	id, err := s.users.Create(ctx, model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         model.DefaultRole,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, internal("create user", err)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return AuthResult{}, internal("load user", err)
	}
	pair, err := s.issue(ctx, u)
	if err != nil {
		return AuthResult{}, err
	}

	s.record(ctx, model.ActionCreate, "user", &u.ID, &u.ID, nil, u.Public(), meta)
	s.invalidate(ctx)
	return AuthResult{User: u.Public(), Tokens: pair}, nil
}

// Login verifies credentials and drives the lockout machine.  Unknown
// emails and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string, meta audit.Meta) (AuthResult, error) {
	email = repository.NormalizeEmail(email)
	found, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Equalize(password)
			s.record(ctx, model.ActionLoginFailed, "auth", nil, nil, nil,
				map[string]any{"email": email, "reason": "unknown_email"}, meta)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, internal("lookup user", err)
	}

	defer s.lockUser(found.ID)()
	// Re-read under the lock so the lockout counters are current.
	u, err := s.users.GetByID(ctx, found.ID)
	if err != nil {
		return AuthResult{}, internal("load user", err)
	}

	now := s.now().UTC()
	state := lockout.State{FailedAttempts: u.FailedLoginAttempts, LockoutUntil: u.LockoutUntil}
	if locked, remaining := s.policy.Locked(state, now); locked {
		s.record(ctx, model.ActionLoginFailed, "auth", &u.ID, &u.ID, nil,
			map[string]any{"email": email, "reason": "locked", "lockoutUntil": u.LockoutUntil}, meta)
		return AuthResult{}, lockedError(remaining, lockout.RemainingMinutes(remaining))
	}
	if !u.IsActive {
		s.record(ctx, model.ActionLoginFailed, "auth", &u.ID, &u.ID, nil,
			map[string]any{"email": email, "reason": "inactive"}, meta)
		return AuthResult{}, ErrAccountDeactivated
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		next, lockedNow := s.policy.Fail(state, now)
		if err := s.users.SaveLoginState(ctx, u.ID, next.FailedAttempts, next.LockoutUntil, nil); err != nil {
			return AuthResult{}, internal("save login state", err)
		}
		if lockedNow {
			s.log.Warn("account locked",
				zap.Uint64("user_id", u.ID),
				zap.Time("lockout_until", *next.LockoutUntil),
				zap.String("request_id", meta.RequestID))
		}
		s.record(ctx, model.ActionLoginFailed, "auth", &u.ID, &u.ID, nil, map[string]any{
			"email":               email,
			"reason":              "invalid_password",
			"failedLoginAttempts": next.FailedAttempts,
			"locked":              lockedNow,
		}, meta)
		return AuthResult{}, ErrInvalidCredentials
	}

	next := s.policy.Succeed(state)
	if err := s.users.SaveLoginState(ctx, u.ID, next.FailedAttempts, next.LockoutUntil, &now); err != nil {
		return AuthResult{}, internal("save login state", err)
	}
	u.FailedLoginAttempts = next.FailedAttempts
	u.LockoutUntil = next.LockoutUntil
	u.LastLogin = &now

	pair, err := s.issue(ctx, u)
	if err != nil {
		return AuthResult{}, err
	}
	s.record(ctx, model.ActionLogin, "auth", &u.ID, &u.ID, nil, map[string]any{"email": email}, meta)
	return AuthResult{User: u.Public(), Tokens: pair}, nil
}

// Refresh exchanges the current refresh token for a new pair.  Presenting a
// superseded token fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta audit.Meta) (utils.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return utils.TokenPair{}, ErrInvalidRefresh
	}

	defer s.lockUser(claims.UserID)()

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.TokenPair{}, ErrInvalidRefresh
		}
		return utils.TokenPair{}, internal("load user", err)
	}
	if u.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*u.RefreshToken), []byte(refreshToken)) != 1 {
		s.log.Warn("refresh token mismatch",
			zap.Uint64("user_id", u.ID),
			zap.Bool("has_session", u.RefreshToken != nil),
			zap.String("request_id", meta.RequestID))
		return utils.TokenPair{}, ErrInvalidRefresh
	}
	if !u.IsActive {
		return utils.TokenPair{}, ErrAccountDeactivated
	}
	return s.issue(ctx, u)
}

// Logout drops the stored refresh token.  Calling it twice is harmless.
func (s *AuthService) Logout(ctx context.Context, userID uint64, meta audit.Meta) error {
	defer s.lockUser(userID)()
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return internal("clear refresh token", err)
	}
	s.record(ctx, model.ActionLogout, "auth", &userID, &userID, nil, nil, meta)
	return nil
}

// Me returns the sanitized record of userID.
func (s *AuthService) Me(ctx context.Context, userID uint64) (model.PublicUser, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, ErrUserNotFound
		}
		return model.PublicUser{}, internal("load user", err)
	}
	return u.Public(), nil
}

// issue mints a pair for u and persists the refresh token, superseding any
// previous one.
func (s *AuthService) issue(ctx context.Context, u model.User) (utils.TokenPair, error) {
	pair, err := s.tokens.IssuePair(model.Principal{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return utils.TokenPair{}, internal("sign tokens", err)
	}
	if err := s.users.SetRefreshToken(ctx, u.ID, &pair.RefreshToken); err != nil {
		return utils.TokenPair{}, internal("store refresh token", err)
	}
	return pair, nil
}

func (s *AuthService) record(ctx context.Context, action model.Action, resource string, resourceID, actor *uint64,
	oldValue, newValue any, meta audit.Meta) {
	if s.audit == nil {
		return
	}
	var rid *string
	if resourceID != nil {
		ref := audit.UserRef(*resourceID)
		rid = &ref
	}
	s.audit.Record(ctx, model.AuditLogEntry{
		UserID:     actor,
		Action:     action,
		Resource:   resource,
		ResourceID: rid,
		OldValue:   oldValue,
		NewValue:   newValue,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
		RequestID:  meta.RequestID,
	})
}

func (s *AuthService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Invalidate(ctx, cache.UsersPattern); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

// lockUser takes the per-account lock and returns its release.  Callers
// hold at most one at a time.
func (s *AuthService) lockUser(id uint64) func() {
	return s.locks.lock("user:" + strconv.FormatUint(id, 10))
}

// keyedMutex serializes read-modify-write sequences on one account within
// this process.  Separate instances still race (last writer wins).
type keyedMutex struct {
	stripes [64]sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}
