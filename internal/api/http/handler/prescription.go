package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/prescription"
)

type PrescriptionHandler struct {
	svc prescription.Service
}

func NewPrescriptionHandler(svc prescription.Service) *PrescriptionHandler {
	return &PrescriptionHandler{svc: svc}
}

func mapPrescriptionError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, prescription.ErrPrescriptionNotFound),
		errors.Is(err, prescription.ErrTemplateNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, prescription.ErrNotOwner):
		return forbidden(c)
	case errors.Is(err, prescription.ErrTemplateName),
		errors.Is(err, prescription.ErrNoMedications):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

type templateBody struct {
	Name        string            `json:"name"`
	Diagnosis   string            `json:"diagnosis"`
	Medications []repo.Medication `json:"medications"`
	Notes       string            `json:"notes"`
}

func (b templateBody) input() prescription.TemplateInput {
	return prescription.TemplateInput{
		Name:        b.Name,
		Diagnosis:   b.Diagnosis,
		Medications: b.Medications,
		Notes:       b.Notes,
	}
}

// GET /prescriptions/:id
func (h *PrescriptionHandler) Get(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid prescription id")
	}
	p, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return mapPrescriptionError(c, err)
	}
	return ok(c, p)
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// GET /prescription-templates
func (h *PrescriptionHandler) ListTemplates(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	out, err := h.svc.ListTemplates(c.Context(), caller)
	if err != nil {
		return mapPrescriptionError(c, err)
	}
	return ok(c, out)
}

// POST /prescription-templates
func (h *PrescriptionHandler) CreateTemplate(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body templateBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	t, err := h.svc.CreateTemplate(c.Context(), caller, body.input())
	if err != nil {
		return mapPrescriptionError(c, err)
	}
	return created(c, t)
}

// PUT /prescription-templates/:id
func (h *PrescriptionHandler) UpdateTemplate(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid template id")
	}
	var body templateBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	t, err := h.svc.UpdateTemplate(c.Context(), caller, id, body.input())
	if err != nil {
		return mapPrescriptionError(c, err)
	}
	return ok(c, t)
}

// DELETE /prescription-templates/:id
func (h *PrescriptionHandler) DeleteTemplate(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid template id")
	}
	if err := h.svc.DeleteTemplate(c.Context(), caller, id); err != nil {
		return mapPrescriptionError(c, err)
	}
	return noContent(c)
}
