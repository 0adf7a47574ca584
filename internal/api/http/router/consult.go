package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerConsultRoutes(
	api fiber.Router,
	h *handler.ConsultHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	group := api.Group("/consults", authRequired)
	group.Post("/", requirePerm(authorize.ResourceConsult, authorize.ActionCreate), h.Request)
	group.Get("/pending", requirePerm(authorize.ResourceConsult, authorize.ActionList), h.Pending)
	group.Get("/reviewed", requirePerm(authorize.ResourceConsult, authorize.ActionRead), h.Reviewed)

	c := group.Group("/:id", requirePerm(authorize.ResourceConsult, authorize.ActionReview))
	c.Put("/diagnosis", h.Diagnose)
	c.Post("/ai", h.RunAI)
	c.Post("/respond", h.Respond)
}
