package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user id stored by JWTAuth, or "" when
// the request is anonymous.
func UserID(c echo.Context) string {
	if v, ok := c.Get(userIDKey).(string); ok {
		return v
	}
	return ""
}

// userOrGuest is UserID with a placeholder for anonymous requests, for use
// in cache and rate limit keys.
func userOrGuest(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "guest"
}
