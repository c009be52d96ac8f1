package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-procurement/internal/middleware"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/repository"
)

// AuditLister reads the audit trail.  *repository.AuditRepo implements it.
type AuditLister interface {
	List(ctx context.Context, f repository.AuditFilter) ([]model.AuditLogEntry, error)
}

type AuditHandler struct {
	store AuditLister
}

func NewAuditHandler(store AuditLister) *AuditHandler {
	return &AuditHandler{store: store}
}

type auditPage struct {
	Items  []model.AuditLogEntry `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// parseFilter reads userId, action, limit and offset from the query string.
func parseFilter(c echo.Context) (repository.AuditFilter, error) {
	var (
		f      repository.AuditFilter
		uid    uint64
		action string
	)
	err := echo.QueryParamsBinder(c).
		Uint64("userId", &uid).
		String("action", &action).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		BindError()
	if err != nil {
		return f, &validationError{msg: "Invalid query parameters"}
	}
	if c.QueryParam("userId") != "" {
		f.UserID = &uid
	}
	if action != "" {
		f.Action = model.Action(action)
		if !f.Action.Valid() {
			return f, &validationError{msg: "Unknown audit action", fields: []fieldError{{Field: "action", Message: "is invalid"}}}
		}
	}
	if f.Limit < 0 || f.Offset < 0 {
		return f, &validationError{msg: "limit and offset must not be negative"}
	}
	return f, nil
}

func (h *AuditHandler) list(c echo.Context, f repository.AuditFilter) error {
	items, err := h.store.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.AuditLogEntry{}
	}
	return ok(c, http.StatusOK, auditPage{Items: items, Limit: f.Limit, Offset: f.Offset})
}

// List: GET /audit-logs (admin)
func (h *AuditHandler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	return h.list(c, f)
}

// Activity: GET /auth/activity lists the caller's own audit trail.
// Privileged callers may pass userId to inspect another account.
func (h *AuditHandler) Activity(c echo.Context) error {
	p, found := middleware.CurrentPrincipal(c)
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	if f.UserID != nil && !middleware.CheckOwnership(p, *f.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "You can only view your own activity")
	}
	owner, restricted := middleware.FilterByOwnership(p)
	switch {
	case restricted:
		f.UserID = &owner
	case f.UserID == nil:
		self := p.ID
		f.UserID = &self
	}
	return h.list(c, f)
}
