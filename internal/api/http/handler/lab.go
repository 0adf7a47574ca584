package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/lab"
)

type LabHandler struct {
	svc       lab.Service
	projector *feed.Projector
}

func NewLabHandler(svc lab.Service, projector *feed.Projector) *LabHandler {
	return &LabHandler{svc: svc, projector: projector}
}

func mapLabError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, lab.ErrLabRequestNotFound),
		errors.Is(err, lab.ErrVisitNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, lab.ErrNotPaid):
		return unprocessable(c, err.Error())
	case errors.Is(err, lab.ErrNoTests),
		errors.Is(err, lab.ErrInvalidPrice):
		return badRequest(c, err.Error())
	default:
		return internalError(c)
	}
}

type labOrderBody struct {
	VisitID uuid.UUID `json:"visit_id"`
	Tests   []struct {
		Name  string `json:"name"`
		Price int64  `json:"price"`
	} `json:"tests"`
}

type labCompleteBody struct {
	Notes   string              `json:"notes"`
	Results []repo.LabResultRow `json:"results"`
}

// POST /lab/requests
func (h *LabHandler) Order(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	var body labOrderBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	req := lab.OrderRequest{VisitID: body.VisitID, Tests: make([]lab.TestOrder, 0, len(body.Tests))}
	for _, t := range body.Tests {
		req.Tests = append(req.Tests, lab.TestOrder{Name: t.Name, Price: t.Price})
	}
	out, err := h.svc.CreateRequest(c.Context(), caller, req)
	if err != nil {
		return mapLabError(c, err)
	}
	return created(c, out)
}

// GET /lab/worklist
func (h *LabHandler) Worklist(c fiber.Ctx) error {
	if out, warm := h.projector.LabWorklist(); warm {
		return ok(c, out)
	}
	out, err := h.svc.Worklist(c.Context())
	if err != nil {
		return mapLabError(c, err)
	}
	return ok(c, out)
}

// GET /lab/archive
func (h *LabHandler) Archive(c fiber.Ctx) error {
	out, err := h.svc.Archive(c.Context())
	if err != nil {
		return mapLabError(c, err)
	}
	return ok(c, out)
}

// GET /lab/requests/:id
func (h *LabHandler) Get(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid lab request id")
	}
	r, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return mapLabError(c, err)
	}
	return ok(c, r)
}

// GET /visits/:id/lab-requests
func (h *LabHandler) ForVisit(c fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid visit id")
	}
	out, err := h.svc.ForVisit(c.Context(), id)
	if err != nil {
		return mapLabError(c, err)
	}
	return ok(c, out)
}

// POST /lab/requests/:id/start
func (h *LabHandler) Start(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid lab request id")
	}
	r, err := h.svc.StartProcessing(c.Context(), caller, id)
	if err != nil {
		return mapLabError(c, err)
	}
	return ok(c, r)
}

// POST /lab/requests/:id/complete
//
// Result files travel under "files" with the JSON body in "payload".
func (h *LabHandler) Complete(c fiber.Ctx) error {
	caller, valid := callerFrom(c)
	if !valid {
		return unauthorized(c)
	}
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid lab request id")
	}
	var body labCompleteBody
	if err := bindPayload(c, &body); err != nil {
		return badRequest(c, "invalid request body")
	}
	files, err := formUploads(c, "files")
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.svc.Complete(c.Context(), caller, lab.CompleteRequest{
		RequestID: id,
		Files:     files,
		Notes:     body.Notes,
		Results:   body.Results,
	})
	if err != nil {
		return mapLabError(c, err)
	}
	return ok(c, res)
}
