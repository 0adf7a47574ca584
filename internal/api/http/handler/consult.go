package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/consult"
)

type ConsultHandler struct {
	svc       consult.Service
	projector *feed.Projector
}

func NewConsultHandler(svc consult.Service, projector *feed.Projector) *ConsultHandler {
	return &ConsultHandler{svc: svc, projector: projector}
}

func mapConsultError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, consult.ErrVisitNotFound),
		errors.Is(err, consult.ErrPatientNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, consult.ErrNotAConsult):
		return conflict(c, err.Error())
	case errors.Is(err, consult.ErrEmptySymptoms),
		errors.Is(err, consult.ErrMissingAnalysis):
		return badRequest(c, err.Error())
	default:
		return mapAssistantError(c, err)
	}
}

type consultRequestBody struct {
	PatientID uuid.UUID        `json:"patient_id"`
	Symptoms  string           `json:"symptoms"`
	Vitals    repo.Vitals      `json:"vitals"`
	AIResult  *repo.AIAnalysis `json:"ai_result"`
}

type diagnosisBody struct {
	FinalDiagnosis string           `json:"final_diagnosis"`
	Analysis       *repo.AIAnalysis `json:"analysis"`
}

// POST /consults
func (h *ConsultHandler) Request(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body consultRequestBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	v, err := h.svc.RequestConsult(c.Context(), caller, consult.RequestConsultRequest{
		PatientID: body.PatientID,
		Symptoms:  body.Symptoms,
		Vitals:    body.Vitals,
		AIResult:  body.AIResult,
	})
	if err != nil {
		return mapConsultError(c, err)
	}
	return created(c, v)
}

// GET /consults/pending
func (h *ConsultHandler) Pending(c fiber.Ctx) error {
	if out, warm := h.projector.PendingConsults(); warm {
		return ok(c, out)
	}
	out, err := h.svc.Pending(c.Context())
	if err != nil {
		return mapConsultError(c, err)
	}
	return ok(c, out)
}

// GET /consults/reviewed
func (h *ConsultHandler) Reviewed(c fiber.Ctx) error {
	out, err := h.svc.Reviewed(c.Context())
	if err != nil {
		return mapConsultError(c, err)
	}
	return ok(c, out)
}

// PUT /consults/:id/diagnosis
func (h *ConsultHandler) Diagnose(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	var body diagnosisBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	d, err := h.svc.RunAdminDiagnosis(c.Context(), caller, id, consult.DiagnosisInput{
		FinalDiagnosis: body.FinalDiagnosis,
		Analysis:       body.Analysis,
	})
	if err != nil {
		return mapConsultError(c, err)
	}
	return ok(c, d)
}

// POST /consults/:id/ai
func (h *ConsultHandler) RunAI(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	d, err := h.svc.RunAIForConsult(c.Context(), caller, id)
	if err != nil {
		return mapConsultError(c, err)
	}
	return ok(c, d)
}

// POST /consults/:id/respond
func (h *ConsultHandler) Respond(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	var body struct {
		Feedback string `json:"feedback"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	v, err := h.svc.Respond(c.Context(), caller, id, body.Feedback)
	if err != nil {
		return mapConsultError(c, err)
	}
	return ok(c, v)
}
