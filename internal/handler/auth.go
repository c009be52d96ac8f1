package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-procurement/internal/audit"
	"github.com/iliyamo/cafeteria-procurement/internal/middleware"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
	"github.com/iliyamo/cafeteria-procurement/internal/service"
	"github.com/iliyamo/cafeteria-procurement/internal/utils"
)

// Sessions is the session manager consumed by AuthHandler.
// *service.AuthService implements it.
type Sessions interface {
	Register(ctx context.Context, in service.RegisterInput, meta audit.Meta) (service.AuthResult, error)
	Login(ctx context.Context, email, password string, meta audit.Meta) (service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, meta audit.Meta) (utils.TokenPair, error)
	Logout(ctx context.Context, userID uint64, meta audit.Meta) error
	Me(ctx context.Context, userID uint64) (model.PublicUser, error)
	RequestReset(ctx context.Context, email string, meta audit.Meta) error
	ConsumeReset(ctx context.Context, token, newPassword string, meta audit.Meta) error
}

// AuthHandler serves /auth.
type AuthHandler struct {
	svc Sessions
}

func NewAuthHandler(svc Sessions) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,strongpw"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,strongpw"`
}

const (
	msgLoggedOut    = "Logged out successfully"
	msgResetSent    = "If an account with that email exists, a password reset link has been sent"
	msgResetApplied = "Password has been reset successfully"
)

// Register: POST /auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Register(c.Request().Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, middleware.AuditMeta(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, res)
}

// Login: POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password, middleware.AuditMeta(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, res)
}

// Refresh: POST /auth/refresh rotates the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken, middleware.AuditMeta(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, pair)
}

// Logout: POST /auth/logout (bearer)
func (h *AuthHandler) Logout(c echo.Context) error {
	p, found := middleware.CurrentPrincipal(c)
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	if err := h.svc.Logout(c.Request().Context(), p.ID, middleware.AuditMeta(c)); err != nil {
		return err
	}
	return message(c, msgLoggedOut)
}

// Me: GET /auth/me (bearer)
func (h *AuthHandler) Me(c echo.Context) error {
	p, found := middleware.CurrentPrincipal(c)
	if !found {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	u, err := h.svc.Me(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"user": u})
}

// ForgotPassword: POST /auth/forgot-password always answers with the same
// body.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.RequestReset(c.Request().Context(), req.Email, middleware.AuditMeta(c)); err != nil {
		return err
	}
	return message(c, msgResetSent)
}

// ResetPassword: POST /auth/reset-password
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ConsumeReset(c.Request().Context(), req.Token, req.NewPassword, middleware.AuditMeta(c)); err != nil {
		return err
	}
	return message(c, msgResetApplied)
}
