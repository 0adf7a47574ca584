package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerCashierRoutes(
	api fiber.Router,
	h *handler.CashierHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	group := api.Group("/cashier", authRequired)
	group.Get("/unpaid-visits", requirePerm(authorize.ResourcePayment, authorize.ActionList), h.UnpaidVisits)
	group.Get("/unpaid-lab-requests", requirePerm(authorize.ResourcePayment, authorize.ActionList), h.UnpaidLabRequests)
	group.Get("/payments/today", requirePerm(authorize.ResourcePayment, authorize.ActionList), h.TodaysPayments)
	group.Post("/payments", requirePerm(authorize.ResourcePayment, authorize.ActionExecute), h.ProcessPayment)
	group.Get("/report", requirePerm(authorize.ResourceReport, authorize.ActionRead), h.DailyReport)
}
