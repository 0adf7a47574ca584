package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/cashier"
)

type CashierHandler struct {
	svc       cashier.Service
	projector *feed.Projector
	loc       *time.Location
}

func NewCashierHandler(svc cashier.Service, projector *feed.Projector, loc *time.Location) *CashierHandler {
	return &CashierHandler{svc: svc, projector: projector, loc: loc}
}

func mapCashierError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, cashier.ErrVisitNotFound),
		errors.Is(err, cashier.ErrLabRequestNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, cashier.ErrInvalidPaymentType),
		errors.Is(err, cashier.ErrInvalidAmount):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

type paymentBody struct {
	Type        repo.PaymentType `json:"type"`
	TargetID    uuid.UUID        `json:"target_id"`
	Amount      int64            `json:"amount"`
	PatientID   *uuid.UUID       `json:"patient_id"`
	Description string           `json:"description"`
}

// GET /cashier/unpaid-visits
func (h *CashierHandler) UnpaidVisits(c fiber.Ctx) error {
	if out, warm := h.projector.UnpaidVisits(); warm {
		return ok(c, out)
	}
	out, err := h.svc.UnpaidVisits(c.Context())
	if err != nil {
		return mapCashierError(c, err)
	}
	return ok(c, out)
}

// GET /cashier/unpaid-lab-requests
func (h *CashierHandler) UnpaidLabRequests(c fiber.Ctx) error {
	if out, warm := h.projector.UnpaidLabRequests(); warm {
		return ok(c, out)
	}
	out, err := h.svc.UnpaidLabRequests(c.Context())
	if err != nil {
		return mapCashierError(c, err)
	}
	return ok(c, out)
}

// GET /cashier/payments/today
func (h *CashierHandler) TodaysPayments(c fiber.Ctx) error {
	out, err := h.svc.TodaysPayments(c.Context())
	if err != nil {
		return mapCashierError(c, err)
	}
	return ok(c, out)
}

// POST /cashier/payments
func (h *CashierHandler) ProcessPayment(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body paymentBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	p, err := h.svc.ProcessPayment(c.Context(), caller, cashier.ProcessPaymentRequest{
		Type:        body.Type,
		TargetID:    body.TargetID,
		Amount:      body.Amount,
		PatientID:   body.PatientID,
		Description: body.Description,
	})
	if err != nil {
		return mapCashierError(c, err)
	}
	return created(c, p)
}

// GET /cashier/report?day=YYYY-MM-DD
func (h *CashierHandler) DailyReport(c fiber.Ctx) error {
	day, valid := queryDay(c, h.loc)
	if !valid {
		return badRequest(c, "day must be YYYY-MM-DD")
	}
	out, err := h.svc.DailyReport(c.Context(), day)
	if err != nil {
		return mapCashierError(c, err)
	}
	return ok(c, out)
}
