package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/auth"
	"github.com/Alijeyrad/tabib_backend/pkg/reqctx"
)

const LocalsIdentity = "auth.identity"

// AuthRequired validates a Bearer PASETO access token and checks its session.
// EventSource clients cannot set headers, so an access_token query parameter
// is accepted when the header is absent.
// On success the identity is stored in locals and on the request context.
func AuthRequired(svc auth.Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			return fiber.ErrUnauthorized
		}

		id, err := svc.Authenticate(c.Context(), token)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals(LocalsIdentity, id)
		c.SetContext(reqctx.WithClaims(c.Context(), id))
		return c.Next()
	}
}

func bearerToken(h string) string {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IdentityFromFiber returns the identity stored by AuthRequired.
func IdentityFromFiber(c fiber.Ctx) (*auth.Identity, bool) {
	id, ok := c.Locals(LocalsIdentity).(*auth.Identity)
	return id, ok && id != nil
}

// CallerFromFiber returns the authenticated caller.
func CallerFromFiber(c fiber.Ctx) (repo.Caller, bool) {
	id, ok := IdentityFromFiber(c)
	if !ok {
		return repo.Caller{}, false
	}
	return id.Caller, true
}
