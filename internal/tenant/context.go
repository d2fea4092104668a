package tenant

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/gofiber/fiber/v2"
)

const identityKey = "identity"

// SetIdentity stores the resolved caller on the request.
func SetIdentity(c *fiber.Ctx, id identity.Identity) {
	c.Locals(identityKey, id)
}

// GetIdentity returns the resolved caller, false if the route is not
// behind an authentication middleware.
func GetIdentity(c *fiber.Ctx) (identity.Identity, bool) {
	id, ok := c.Locals(identityKey).(identity.Identity)
	return id, ok
}
