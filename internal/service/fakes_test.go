package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/cafeteria-procurement/internal/config"
	"github.com/iliyamo/cafeteria-procurement/internal/lockout"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/queue"
	"github.com/iliyamo/cafeteria-procurement/internal/repository"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

// memUsers is an in-memory UserStore.
type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
	failOn string
	now    func() time.Time
}

func newMemUsers(now func() time.Time) *memUsers {
	return &memUsers{byID: map[uint64]*model.User{}, now: now}
}

var errStoreDown = errors.New("store down")

func (m *memUsers) fail(op string) error {
	if m.failOn == op {
		return errStoreDown
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u model.User) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Create"); err != nil {
		return 0, err
	}
	u.Email = repository.NormalizeEmail(u.Email)
	for _, x := range m.byID {
		if x.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = m.now()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.ID] = &u
	return u.ID, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetByEmail"); err != nil {
		return model.User{}, err
	}
	email = repository.NormalizeEmail(email)
	for _, u := range m.byID {
		if u.Email == email {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetByID"); err != nil {
		return model.User{}, err
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return *u, nil
}

func (m *memUsers) GetByResetTokenHash(_ context.Context, h string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == h {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) SaveLoginState(_ context.Context, id uint64, failed int, until, last *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveLoginState"); err != nil {
		return err
	}
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.FailedLoginAttempts = failed
	u.LockoutUntil = until
	if last != nil {
		u.LastLogin = last
	}
	return nil
}

func (m *memUsers) SetRefreshToken(_ context.Context, id uint64, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SetRefreshToken"); err != nil {
		return err
	}
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if token != nil {
		t := *token
		token = &t
	}
	u.RefreshToken = token
	return nil
}

func (m *memUsers) SetResetToken(_ context.Context, id uint64, h string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordResetToken = &h
	u.PasswordResetExpires = &exp
	return nil
}

func (m *memUsers) CompleteReset(_ context.Context, id uint64, h, pw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.PasswordResetToken == nil || *u.PasswordResetToken != h {
		return repository.ErrNotFound
	}
	u.PasswordHash = pw
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.RefreshToken = nil
	return nil
}

func (m *memUsers) get(id uint64) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

func (m *memUsers) update(id uint64, fn func(u *model.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.byID[id])
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditLogEntry
}

func (a *memAudit) Record(_ context.Context, e model.AuditLogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *memAudit) actions() []model.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Action, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func (a *memAudit) last() model.AuditLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[len(a.entries)-1]
}

type countingCache struct {
	mu       sync.Mutex
	patterns []string
}

func (c *countingCache) Invalidate(_ context.Context, patterns ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, patterns...)
	return int64(len(patterns)), nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []queue.PasswordResetRequested
	err    error
}

func (n *captureNotifier) NotifyPasswordReset(_ context.Context, ev queue.PasswordResetRequested) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	svc      *AuthService
	users    *memUsers
	audit    *memAudit
	cache    *countingCache
	notifier *captureNotifier
	clock    *clock
	tokens   *utils.TokenIssuer
}

const strongPassword = "Passw0rd!"

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	users := newMemUsers(clk.Now)
	tokens := utils.NewTokenIssuer(config.AuthConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}).WithClock(clk.Now)
	h := &harness{
		users:    users,
		audit:    &memAudit{},
		cache:    &countingCache{},
		notifier: &captureNotifier{},
		clock:    clk,
		tokens:   tokens,
	}
	h.svc = NewAuthService(Deps{
		Users:    users,
		Hasher:   utils.NewHasher(bcrypt.MinCost),
		Tokens:   tokens,
		Lockout:  lockout.Policy{Threshold: 5, Duration: 15 * time.Minute},
		ResetTTL: time.Hour,
		Audit:    h.audit,
		Cache:    h.cache,
		Notifier: h.notifier,
		Now:      clk.Now,
	})
	return h
}

// seed registers an account directly through the service.
func (h *harness) seed(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := h.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: email, Password: strongPassword}, testMeta)
	require.NoError(t, err)
	return res
}
