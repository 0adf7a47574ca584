package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/prescription"
	"github.com/Alijeyrad/tabib_backend/internal/service/visit"
)

type VisitHandler struct {
	svc           visit.Service
	prescriptions prescription.Service
	projector     *feed.Projector
	defaultFee    int64
}

// NewVisitHandler charges defaultFee for visits whose request names no fee.
func NewVisitHandler(svc visit.Service, prescriptions prescription.Service, projector *feed.Projector, defaultFee int64) *VisitHandler {
	return &VisitHandler{svc: svc, prescriptions: prescriptions, projector: projector, defaultFee: defaultFee}
}

func mapVisitError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, visit.ErrVisitNotFound),
		errors.Is(err, visit.ErrPatientNotFound),
		errors.Is(err, visit.ErrDoctorNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, visit.ErrOpenVisitExists):
		return conflict(c, err.Error())
	case errors.Is(err, visit.ErrNoMedications),
		errors.Is(err, visit.ErrInvalidFee),
		errors.Is(err, visit.ErrMissingPatientID):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

type createVisitBody struct {
	PatientID uuid.UUID   `json:"patient_id"`
	DoctorID  uuid.UUID   `json:"doctor_id"`
	Fee       *int64      `json:"fee"`
	IsPaid    bool        `json:"is_paid"`
	Vitals    repo.Vitals `json:"vitals"`
	Symptoms  string      `json:"symptoms"`
}

type completeVisitBody struct {
	PatientID   uuid.UUID         `json:"patient_id"`
	AIResult    *repo.AIAnalysis  `json:"ai_result"`
	Diagnosis   string            `json:"diagnosis"`
	Medications []repo.Medication `json:"medications"`
	Notes       string            `json:"notes"`
}

type vitalsBody struct {
	Vitals     *repo.Vitals `json:"vitals"`
	Symptoms   *string      `json:"symptoms"`
	AppendText string       `json:"append_text"`
}

// ---------------------------------------------------------------------------
// Reception
// ---------------------------------------------------------------------------

// POST /visits
func (h *VisitHandler) Create(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body createVisitBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	fee := h.defaultFee
	if body.Fee != nil {
		fee = *body.Fee
	}
	res, err := h.svc.CreateVisit(c.Context(), caller, visit.CreateVisitRequest{
		PatientID: body.PatientID,
		DoctorID:  body.DoctorID,
		Fee:       fee,
		IsPaid:    body.IsPaid,
		Vitals:    body.Vitals,
		Symptoms:  body.Symptoms,
	})
	if err != nil {
		return mapVisitError(c, err)
	}
	return created(c, res)
}

// POST /visits/manual
func (h *VisitHandler) StartManual(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body createVisitBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.svc.StartManualVisit(c.Context(), caller, body.PatientID, body.Vitals, body.Symptoms)
	if err != nil {
		return mapVisitError(c, err)
	}
	return created(c, res)
}

// GET /visits/waiting-room?doctor_id=
func (h *VisitHandler) WaitingRoom(c fiber.Ctx) error {
	doctorID, valid := queryID(c, "doctor_id")
	if !valid {
		return badRequest(c, "invalid doctor_id")
	}
	if out, warm := h.projector.WaitingRoom(doctorID); warm {
		return ok(c, out)
	}
	out, err := h.svc.WaitingRoom(c.Context(), doctorID)
	if err != nil {
		return mapVisitError(c, err)
	}
	return ok(c, out)
}

// GET /visits/today?doctor_id=
func (h *VisitHandler) Today(c fiber.Ctx) error {
	doctorID, valid := queryID(c, "doctor_id")
	if !valid {
		return badRequest(c, "invalid doctor_id")
	}
	out, err := h.svc.ListToday(c.Context(), doctorID)
	if err != nil {
		return mapVisitError(c, err)
	}
	return ok(c, out)
}

// GET /visits/:id
func (h *VisitHandler) Get(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	v, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return mapVisitError(c, err)
	}
	return ok(c, v)
}

// ---------------------------------------------------------------------------
// Doctor
// ---------------------------------------------------------------------------

// POST /visits/:id/hold
func (h *VisitHandler) Hold(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	v, err := h.svc.HoldForLab(c.Context(), caller, id)
	if err != nil {
		return mapVisitError(c, err)
	}
	return ok(c, v)
}

// PATCH /visits/:id/vitals
func (h *VisitHandler) UpdateVitals(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	var body vitalsBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	v, err := h.svc.UpdateVitals(c.Context(), caller, id, visit.UpdateVitalsRequest{
		Vitals:     body.Vitals,
		Symptoms:   body.Symptoms,
		AppendText: body.AppendText,
	})
	if err != nil {
		return mapVisitError(c, err)
	}
	return ok(c, v)
}

// POST /visits/complete
//
// Accepts plain JSON, or a multipart form with the JSON in "payload" and
// examination images under "images".
func (h *VisitHandler) Complete(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body completeVisitBody
	if err := bindPayload(c, &body); err != nil {
		return badRequest(c, "invalid request body")
	}
	images, err := formUploads(c, "images")
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.svc.SaveCompleteVisit(c.Context(), caller, visit.CompleteVisitRequest{
		PatientID:   body.PatientID,
		AIResult:    body.AIResult,
		Diagnosis:   body.Diagnosis,
		Medications: body.Medications,
		Notes:       body.Notes,
		Images:      images,
	})
	if err != nil {
		return mapVisitError(c, err)
	}
	return created(c, res)
}

// GET /visits/:id/prescriptions
func (h *VisitHandler) Prescriptions(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	out, err := h.prescriptions.ForVisit(c.Context(), id)
	if err != nil {
		return mapPrescriptionError(c, err)
	}
	return ok(c, out)
}
