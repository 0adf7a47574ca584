package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/assistant"
	svcfile "github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/internal/service/patient"
	"github.com/Alijeyrad/tabib_backend/pkg/ai"
)

type AssistantHandler struct {
	svc      assistant.Service
	patients patient.Service
}

func NewAssistantHandler(svc assistant.Service, patients patient.Service) *AssistantHandler {
	return &AssistantHandler{svc: svc, patients: patients}
}

func mapAssistantError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, assistant.ErrUnavailable):
		return serviceUnavailable(c, err.Error())
	case errors.Is(err, assistant.ErrBadAnswer):
		return badGateway(c, err.Error())
	case errors.Is(err, assistant.ErrEmptySymptoms),
		errors.Is(err, assistant.ErrEmptyQuestion),
		errors.Is(err, assistant.ErrNoImage):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

type diagnoseBody struct {
	PatientID  *uuid.UUID            `json:"patient_id"`
	Symptoms   string                `json:"symptoms"`
	Vitals     repo.Vitals           `json:"vitals"`
	LabResults []repo.LabResultRow   `json:"lab_results"`
	References []assistant.Reference `json:"references"`
	WebSearch  bool                  `json:"web_search"`
}

func toImages(ups []svcfile.Upload) []ai.Image {
	out := make([]ai.Image, 0, len(ups))
	for _, u := range ups {
		out = append(out, ai.Image{Name: u.Name, MIME: u.ContentType, Data: u.Data})
	}
	return out
}

// singleImage reads the "image" form file.
func singleImage(c fiber.Ctx) (ai.Image, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return ai.Image{}, assistant.ErrNoImage
	}
	up, err := svcfile.FromMultipart(fh)
	if err != nil {
		return ai.Image{}, err
	}
	return ai.Image{Name: up.Name, MIME: up.ContentType, Data: up.Data}, nil
}

// GET /assistant/status
func (h *AssistantHandler) Status(c fiber.Ctx) error {
	return ok(c, fiber.Map{"enabled": h.svc.Enabled()})
}

// POST /assistant/diagnose
func (h *AssistantHandler) Diagnose(c fiber.Ctx) error {
	var body diagnoseBody
	if err := bindPayload(c, &body); err != nil {
		return badRequest(c, "invalid request body")
	}
	uploads, err := formUploads(c, "images")
	if err != nil {
		return badRequest(c, err.Error())
	}

	req := assistant.DiagnoseRequest{
		Symptoms:   body.Symptoms,
		Vitals:     body.Vitals,
		LabResults: body.LabResults,
		Images:     toImages(uploads),
		References: body.References,
		WebSearch:  body.WebSearch,
	}
	if body.PatientID != nil {
		p, err := h.patients.Get(c.Context(), *body.PatientID)
		if err != nil {
			return mapPatientError(c, err)
		}
		req.Patient = p.Patient
	}

	out, err := h.svc.Diagnose(c.Context(), req)
	if err != nil {
		return mapAssistantError(c, err)
	}
	return ok(c, out)
}

// POST /assistant/ocr
func (h *AssistantHandler) OCR(c fiber.Ctx) error {
	img, err := singleImage(c)
	if err != nil {
		return mapAssistantError(c, err)
	}
	text, err := h.svc.ExtractText(c.Context(), img)
	if err != nil {
		return mapAssistantError(c, err)
	}
	return ok(c, fiber.Map{"text": text})
}

// POST /assistant/lab-results
func (h *AssistantHandler) LabResults(c fiber.Ctx) error {
	img, err := singleImage(c)
	if err != nil {
		return mapAssistantError(c, err)
	}
	rows, err := h.svc.ExtractLabResults(c.Context(), img)
	if err != nil {
		return mapAssistantError(c, err)
	}
	return ok(c, rows)
}

// POST /assistant/library
func (h *AssistantHandler) Library(c fiber.Ctx) error {
	var body struct {
		Question   string                `json:"question"`
		References []assistant.Reference `json:"references"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	answer, err := h.svc.AskLibrary(c.Context(), body.Question, body.References)
	if err != nil {
		return mapAssistantError(c, err)
	}
	return ok(c, fiber.Map{"answer": answer})
}
