package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerAssistantRoutes(
	api fiber.Router,
	h *handler.AssistantHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	group := api.Group("/assistant", authRequired, requirePerm(authorize.ResourceAssistant, authorize.ActionExecute))
	group.Get("/status", h.Status)
	group.Post("/diagnose", h.Diagnose)
	group.Post("/ocr", h.OCR)
	group.Post("/lab-results", h.LabResults)
	group.Post("/library", h.Library)
}
