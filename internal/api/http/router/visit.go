package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerVisitRoutes(
	api fiber.Router,
	vh *handler.VisitHandler,
	lh *handler.LabHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	visits := api.Group("/visits", authRequired)

	// Reception
	visits.Post("/", requirePerm(authorize.ResourceVisit, authorize.ActionCreate), vh.Create)
	visits.Get("/waiting-room", requirePerm(authorize.ResourceVisit, authorize.ActionList), vh.WaitingRoom)
	visits.Get("/today", requirePerm(authorize.ResourceVisit, authorize.ActionList), vh.Today)

	// Doctor
	visits.Post("/manual", requirePerm(authorize.ResourceVisit, authorize.ActionManage), vh.StartManual)
	visits.Post("/complete", requirePerm(authorize.ResourceVisit, authorize.ActionComplete), vh.Complete)

	v := visits.Group("/:id")
	v.Get("/", requirePerm(authorize.ResourceVisit, authorize.ActionRead), vh.Get)
	v.Post("/hold", requirePerm(authorize.ResourceVisit, authorize.ActionHold), vh.Hold)
	v.Patch("/vitals", requirePerm(authorize.ResourceVisit, authorize.ActionUpdate), vh.UpdateVitals)
	v.Get("/prescriptions", requirePerm(authorize.ResourcePrescription, authorize.ActionRead), vh.Prescriptions)
	v.Get("/lab-requests", requirePerm(authorize.ResourceLabRequest, authorize.ActionRead), lh.ForVisit)
}
