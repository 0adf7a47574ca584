package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

func (r *Router) registerFeedRoutes(
	api fiber.Router,
	h *handler.FeedHandler,
	authRequired fiber.Handler,
	requirePerm func(authorize.Resource, authorize.Action) fiber.Handler,
) {
	api.Get("/feed", authRequired, requirePerm(authorize.ResourceFeed, authorize.ActionRead), h.Stream)
}
