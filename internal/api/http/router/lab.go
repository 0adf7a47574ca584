package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerLabRoutes(
	api fiber.Router,
	h *handler.LabHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	group := api.Group("/lab", authRequired)
	group.Get("/worklist", requirePerm(authorize.ResourceLabRequest, authorize.ActionList), h.Worklist)
	group.Get("/archive", requirePerm(authorize.ResourceLabRequest, authorize.ActionList), h.Archive)
	group.Post("/requests", requirePerm(authorize.ResourceLabRequest, authorize.ActionCreate), h.Order)

	req := group.Group("/requests/:id")
	req.Get("/", requirePerm(authorize.ResourceLabRequest, authorize.ActionRead), h.Get)
	req.Post("/start", requirePerm(authorize.ResourceLabRequest, authorize.ActionUpdate), h.Start)
	req.Post("/complete", requirePerm(authorize.ResourceLabRequest, authorize.ActionComplete), h.Complete)
}
