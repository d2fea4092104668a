package middleware

import (
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// APIKeyHeader carries a raw project API key.
const APIKeyHeader = "X-API-Key"

// JWTProtected requires a bearer token signed by codec and stores the
// resolved identity on the request.
func JWTProtected(codec *credential.Codec) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: codec.Secret()},
		Claims:     &credential.Claims{},
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return unauthorized(c, identity.ErrInvalidOrExpired)
			}
			claims, ok := token.Claims.(*credential.Claims)
			if !ok {
				return unauthorized(c, identity.ErrMalformedCredential)
			}
			id, err := identity.FromClaims(claims)
			if err != nil {
				return unauthorized(c, err)
			}
			tenant.SetIdentity(c, id)
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				if strings.TrimSpace(c.Get(fiber.HeaderAuthorization)) == "" {
					return unauthorized(c, identity.ErrMissingCredential)
				}
				return unauthorized(c, identity.ErrMalformedCredential)
			}
			if errors.Is(err, jwt.ErrTokenMalformed) {
				return unauthorized(c, identity.ErrMalformedCredential)
			}
			return unauthorized(c, identity.ErrInvalidOrExpired)
		},
	})
}

// IngestAuth accepts either a bearer token or an X-API-Key header. The
// bearer token wins when both are present.
func IngestAuth(resolver *identity.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := resolver.Resolve(c.UserContext(), identity.Credentials{
			Authorization: c.Get(fiber.HeaderAuthorization),
			APIKey:        c.Get(APIKeyHeader),
		})
		if err != nil {
			if apperr.Is(err, apperr.KindAuthentication) {
				return unauthorized(c, err)
			}
			return err
		}
		tenant.SetIdentity(c, id)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, err error) error {
	resp := dto.ErrorResponse{Error: true, Message: "Unauthorized"}
	var e *apperr.Error
	if errors.As(err, &e) {
		resp.Message = e.Message
		resp.Code = e.Code
	}
	return c.Status(fiber.StatusUnauthorized).JSON(resp)
}
