package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerStaffRoutes(
	api fiber.Router,
	h *handler.StaffHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	group := api.Group("/staff", authRequired)

	// Any signed-in staff member may pick a doctor.
	group.Get("/doctors", h.Doctors)

	group.Get("/", requirePerm(authorize.ResourceStaff, authorize.ActionList), h.List)
	group.Post("/", requirePerm(authorize.ResourceStaff, authorize.ActionCreate), h.Create)

	s := group.Group("/:id")
	s.Get("/", requirePerm(authorize.ResourceStaff, authorize.ActionRead), h.Get)
	s.Patch("/", requirePerm(authorize.ResourceStaff, authorize.ActionUpdate), h.Update)
	s.Post("/activate", requirePerm(authorize.ResourceStaff, authorize.ActionUpdate), h.SetActive(true))
	s.Post("/deactivate", requirePerm(authorize.ResourceStaff, authorize.ActionUpdate), h.SetActive(false))
	s.Post("/reset-password", requirePerm(authorize.ResourceStaff, authorize.ActionUpdate), h.ResetPassword)
}
