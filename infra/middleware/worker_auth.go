package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"hybridcache/pkg/logger"
)

// JWTAuth validates bearer tokens on the admin surface (the /admin group:
// §10's stats, flush and remove-by-prefix endpoints; the health routes are
// mounted outside it). Tokens are HS256, signed with the
// configured admin secret; there is no JWKS/rotation story here, unlike
// the multi-tenant auth this pattern is adapted from, since the admin
// surface has exactly one signer.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}
		if secret == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "admin auth not configured"})
		}

		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("admin token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid claims"})
		}

		if exp, ok := claims["exp"].(float64); ok {
			if time.Now().Unix() > int64(exp) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "token expired", "code": "TOKEN_EXPIRED"})
			}
		}

		if sub, ok := claims["sub"].(string); ok {
			c.Locals("operator", sub)
		}

		return c.Next()
	}
}
