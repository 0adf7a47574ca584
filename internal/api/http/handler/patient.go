package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/service/patient"
	"github.com/Alijeyrad/tabib_backend/internal/service/prescription"
	"github.com/Alijeyrad/tabib_backend/internal/service/visit"
)

type PatientHandler struct {
	svc           patient.Service
	visits        visit.Service
	prescriptions prescription.Service
}

func NewPatientHandler(svc patient.Service, visits visit.Service, prescriptions prescription.Service) *PatientHandler {
	return &PatientHandler{svc: svc, visits: visits, prescriptions: prescriptions}
}

func mapPatientError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, patient.ErrPatientNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, patient.ErrNationalIDTaken):
		return conflict(c, err.Error())
	case errors.Is(err, patient.ErrMissingName),
		errors.Is(err, patient.ErrInvalidPhone),
		errors.Is(err, patient.ErrInvalidNationalID),
		errors.Is(err, patient.ErrBirthDateInFuture):
		return badRequest(c, err.Error())
	case errors.Is(err, patient.ErrEncryptionDisabled):
		return serviceUnavailable(c, err.Error())
	default:
		return internalError(c)
	}
}

type patientBody struct {
	FullName       *string    `json:"full_name"`
	Phone          *string    `json:"phone"`
	NationalID     *string    `json:"national_id"`
	BirthDate      *time.Time `json:"birth_date"`
	Gender         *string    `json:"gender"`
	Address        *string    `json:"address"`
	MedicalHistory *string    `json:"medical_history"`
	Allergies      *string    `json:"allergies"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ---------------------------------------------------------------------------
// Patient CRUD
// ---------------------------------------------------------------------------

// GET /patients
func (h *PatientHandler) List(c fiber.Ctx) error {
	var q struct {
		Search  string `query:"q"`
		Page    int    `query:"page"`
		PerPage int    `query:"per_page"`
	}
	_ = c.Bind().Query(&q)

	out, err := h.svc.List(c.Context(), patient.ListRequest{Search: q.Search, Page: q.Page, PerPage: q.PerPage})
	if err != nil {
		return mapPatientError(c, err)
	}
	return ok(c, out)
}

// POST /patients
func (h *PatientHandler) Create(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body patientBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	rec, err := h.svc.Create(c.Context(), caller, patient.CreatePatientRequest{
		FullName:       deref(body.FullName),
		Phone:          deref(body.Phone),
		NationalID:     deref(body.NationalID),
		BirthDate:      body.BirthDate,
		Gender:         deref(body.Gender),
		Address:        deref(body.Address),
		MedicalHistory: deref(body.MedicalHistory),
		Allergies:      deref(body.Allergies),
	})
	if err != nil {
		return mapPatientError(c, err)
	}
	return created(c, rec)
}

// GET /patients/lookup?national_id=
func (h *PatientHandler) Lookup(c fiber.Ctx) error {
	nid := c.Query("national_id")
	if nid == "" {
		return badRequest(c, "national_id is required")
	}
	rec, err := h.svc.FindByNationalID(c.Context(), nid)
	if err != nil {
		return mapPatientError(c, err)
	}
	return ok(c, rec)
}

// GET /patients/:id
func (h *PatientHandler) Get(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid patient id")
	}
	rec, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return mapPatientError(c, err)
	}
	return ok(c, rec)
}

// PATCH /patients/:id
func (h *PatientHandler) Update(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid patient id")
	}
	var body patientBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	rec, err := h.svc.Update(c.Context(), caller, id, patient.UpdatePatientRequest{
		FullName:       body.FullName,
		Phone:          body.Phone,
		NationalID:     body.NationalID,
		BirthDate:      body.BirthDate,
		Gender:         body.Gender,
		Address:        body.Address,
		MedicalHistory: body.MedicalHistory,
		Allergies:      body.Allergies,
	})
	if err != nil {
		return mapPatientError(c, err)
	}
	return ok(c, rec)
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// GET /patients/:id/visits
func (h *PatientHandler) Visits(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid patient id")
	}
	out, err := h.visits.PatientHistory(c.Context(), id)
	if err != nil {
		return mapVisitError(c, err)
	}
	return ok(c, out)
}

// GET /patients/:id/prescriptions
func (h *PatientHandler) Prescriptions(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid patient id")
	}
	out, err := h.prescriptions.History(c.Context(), id)
	if err != nil {
		return mapPrescriptionError(c, err)
	}
	return ok(c, out)
}
