package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerFileRoutes(
	api fiber.Router,
	h *handler.FileHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	files := api.Group("/files", authRequired)
	files.Post("/", requirePerm(authorize.ResourcePatient, authorize.ActionUpdate), h.Upload)
	files.Get("/*", requirePerm(authorize.ResourceVisit, authorize.ActionRead), h.Download)
}
