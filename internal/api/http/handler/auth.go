package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/middleware"
	"github.com/Alijeyrad/tabib_backend/internal/service/auth"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func mapAuthError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionNotFound):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, auth.ErrAccountDisabled):
		return forbidden(c)
	case errors.Is(err, auth.ErrAccountLocked):
		return tooManyRequests(c, err.Error())
	case errors.Is(err, auth.ErrWrongPassword),
		errors.Is(err, password.ErrTooShort):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body auth.LoginRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.svc.Login(c.Context(), body)
	if err != nil {
		return mapAuthError(c, err)
	}

	return ok(c, fiber.Map{
		"access_token":  res.Tokens.AccessToken,
		"refresh_token": res.Tokens.RefreshToken,
		"expires_in":    res.Tokens.ExpiresIn,
		"staff":         res.Staff,
	})
}

// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	tokens, err := h.svc.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return mapAuthError(c, err)
	}
	return ok(c, tokens)
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	id, valid := middleware.IdentityFromFiber(c)
	if !valid {
		return unauthorized(c)
	}
	if err := h.svc.Logout(c.Context(), id.SessionID); err != nil {
		return mapAuthError(c, err)
	}
	return noContent(c)
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	st, err := h.svc.Me(c.Context(), caller)
	if err != nil {
		return mapAuthError(c, err)
	}
	return ok(c, st)
}

// POST /api/v1/auth/password
func (h *AuthHandler) ChangePassword(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body auth.ChangePasswordRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.svc.ChangePassword(c.Context(), caller, body); err != nil {
		return mapAuthError(c, err)
	}
	return noContent(c)
}
