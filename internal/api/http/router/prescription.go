package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerPrescriptionRoutes(
	api fiber.Router,
	h *handler.PrescriptionHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	api.Get("/prescriptions/:id", authRequired, requirePerm(authorize.ResourcePrescription, authorize.ActionRead), h.Get)

	templates := api.Group("/prescription-templates", authRequired)
	templates.Get("/", requirePerm(authorize.ResourceTemplate, authorize.ActionList), h.ListTemplates)
	templates.Post("/", requirePerm(authorize.ResourceTemplate, authorize.ActionCreate), h.CreateTemplate)
	templates.Put("/:id", requirePerm(authorize.ResourceTemplate, authorize.ActionUpdate), h.UpdateTemplate)
	templates.Delete("/:id", requirePerm(authorize.ResourceTemplate, authorize.ActionManage), h.DeleteTemplate)
}
