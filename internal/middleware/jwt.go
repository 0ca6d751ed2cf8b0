package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// userIDKey is the echo context key JWTAuth stores the subject under.
const userIDKey = "user_id"

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject into the request context.  The provided
// secret must match the one used when issuing tokens.  Handlers read the
// authenticated user through UserID.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			var claims jwt.RegisteredClaims
			tok, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "invalid token"})
			}
			// The subject is the user id; tokens without one identify nobody.
			sub := strings.TrimSpace(claims.Subject)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "invalid claims"})
			}

			c.Set(userIDKey, sub)
			return next(c)
		}
	}
}
