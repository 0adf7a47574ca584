package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/staff"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

type StaffHandler struct {
	svc staff.Service
}

func NewStaffHandler(svc staff.Service) *StaffHandler {
	return &StaffHandler{svc: svc}
}

func mapStaffError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, staff.ErrStaffNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, staff.ErrUsernameTaken):
		return conflict(c, err.Error())
	case errors.Is(err, staff.ErrMissingName),
		errors.Is(err, staff.ErrInvalidUsername),
		errors.Is(err, staff.ErrInvalidRole),
		errors.Is(err, staff.ErrSelfDeactivation),
		errors.Is(err, password.ErrTooShort):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

// GET /staff
func (h *StaffHandler) List(c fiber.Ctx) error {
	var q struct {
		Role       string `query:"role"`
		ActiveOnly bool   `query:"active_only"`
	}
	_ = c.Bind().Query(&q)

	req := staff.ListStaffRequest{ActiveOnly: q.ActiveOnly}
	if q.Role != "" {
		role := repo.StaffRole(q.Role)
		req.Role = &role
	}
	out, err := h.svc.List(c.Context(), req)
	if err != nil {
		return mapStaffError(c, err)
	}
	return ok(c, out)
}

// GET /staff/doctors
func (h *StaffHandler) Doctors(c fiber.Ctx) error {
	out, err := h.svc.Doctors(c.Context())
	if err != nil {
		return mapStaffError(c, err)
	}
	return ok(c, out)
}

// POST /staff
func (h *StaffHandler) Create(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body staff.CreateStaffRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.svc.Create(c.Context(), caller, body)
	if err != nil {
		return mapStaffError(c, err)
	}
	return created(c, res)
}

// GET /staff/:id
func (h *StaffHandler) Get(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid staff id")
	}
	st, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return mapStaffError(c, err)
	}
	return ok(c, st)
}

// PATCH /staff/:id
func (h *StaffHandler) Update(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid staff id")
	}
	var body staff.UpdateStaffRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	st, err := h.svc.Update(c.Context(), caller, id, body)
	if err != nil {
		return mapStaffError(c, err)
	}
	return ok(c, st)
}

// POST /staff/:id/activate and /staff/:id/deactivate
func (h *StaffHandler) SetActive(active bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		caller, valid := callerFrom(c)
		if !valid {
			return unauthorized(c)
		}
		id, valid := paramID(c, "id")
		if !valid {
			return badRequest(c, "invalid staff id")
		}
		st, err := h.svc.SetActive(c.Context(), caller, id, active)
		if err != nil {
			return mapStaffError(c, err)
		}
		return ok(c, st)
	}
}

// POST /staff/:id/reset-password
func (h *StaffHandler) ResetPassword(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid staff id")
	}
	pw, err := h.svc.ResetPassword(c.Context(), caller, id)
	if err != nil {
		return mapStaffError(c, err)
	}
	return ok(c, fiber.Map{"password": pw})
}
