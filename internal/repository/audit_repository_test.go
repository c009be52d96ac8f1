package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cafeteria-procurement/internal/model"
)

func TestAuditRepo_Insert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepo(db)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rid := "4"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs (user_id, action, resource, resource_id, old_value, new_value, ip_address, user_agent, request_id, created_at)")).
		WithArgs(nil, "LOGIN_FAILED", "auth", "4", sqlmock.AnyArg(), []byte(`{"email":"a@b.c"}`),
			"10.0.0.1", "curl/8", "req-1", ts).
		WillReturnResult(sqlmock.NewResult(21, 1))

	e := &model.AuditLogEntry{
		Action:     model.ActionLoginFailed,
		Resource:   "auth",
		ResourceID: &rid,
		NewValue:   map[string]any{"email": "a@b.c"},
		IPAddress:  "10.0.0.1",
		UserAgent:  "curl/8",
		RequestID:  "req-1",
		Timestamp:  ts,
	}
	require.NoError(t, repo.Insert(context.Background(), e))
	assert.Equal(t, uint64(21), e.ID)
}

func TestAuditRepo_ListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepo(db)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	uid := uint64(4)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE user_id=? AND action=? ORDER BY id DESC LIMIT ? OFFSET ?")).
		WithArgs(uid, "LOGIN", 200, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "old_value",
			"new_value", "ip_address", "user_agent", "request_id", "created_at"}).
			AddRow(2, 4, "LOGIN", "auth", "4", nil, []byte(`{"email":"bob@example.com"}`), "ip", "ua", "req", ts).
			AddRow(1, nil, "LOGIN", "auth", nil, nil, nil, "ip", "ua", "req0", ts))

	out, err := repo.List(context.Background(), AuditFilter{UserID: &uid, Action: model.ActionLogin, Limit: 1000, Offset: -3})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, uint64(2), out[0].ID)
	require.NotNil(t, out[0].UserID)
	assert.Equal(t, uid, *out[0].UserID)
	assert.Equal(t, map[string]any{"email": "bob@example.com"}, out[0].NewValue)
	assert.Nil(t, out[0].OldValue)
	assert.Nil(t, out[1].UserID)
	assert.Nil(t, out[1].ResourceID)
}
