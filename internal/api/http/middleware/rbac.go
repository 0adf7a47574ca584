package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

// RequirePermission checks the authenticated staff member against the clinic
// policy. Superadmins are let through by the enforcer itself.
func RequirePermission(auth authorize.IAuthorization, resource authorize.Resource, action authorize.Action) fiber.Handler {
	return func(c fiber.Ctx) error {
		caller, ok := CallerFromFiber(c)
		if !ok {
			return fiber.ErrUnauthorized
		}

		subject := authorize.GroupSubject(caller.UserID.String())
		if err := auth.MustEnforce(c.Context(), subject, authorize.DomainClinic, resource, action); err != nil {
			if errors.Is(err, authorize.ErrForbidden) {
				return fiber.ErrForbidden
			}
			return err
		}

		return c.Next()
	}
}
