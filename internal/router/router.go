// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tee-time-reservation/internal/handler"
	"github.com/iliyamo/tee-time-reservation/internal/middleware"
)

// Deps carries everything the routes need.  Cache and Limit may be nil,
// which leaves GET responses uncached and writes unlimited.
type Deps struct {
	JWTSecret    string
	Health       echo.HandlerFunc
	Reservations *handler.ReservationHandler
	Profiles     *handler.ProfileHandler
	Cache        echo.MiddlewareFunc
	Limit        echo.MiddlewareFunc
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// RegisterRoutes registers the unauthenticated health check and every
// reservation endpoint under /v1.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health)

	cached, limited := d.Cache, d.Limit
	if cached == nil {
		cached = passThrough
	}
	if limited == nil {
		limited = passThrough
	}

	// Every /v1 route requires a bearer token; the subject is the caller.
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))

	g.GET("/me", d.Profiles.Me)
	g.PUT("/me", d.Profiles.UpdateMe, limited)

	h := d.Reservations
	g.GET("/my-reservations", h.Mine, cached)

	g.POST("/reservations", h.Create, limited)
	r := g.Group("/reservations/:id")
	r.GET("", h.Get, cached)
	r.PATCH("", h.Update, limited)
	r.POST("/join", h.Join, limited)
	r.POST("/cancel", h.Cancel, limited)

	r.GET("/members", h.Members, cached)
	r.POST("/members/:userId/approve", h.Approve, limited)
	r.POST("/members/:userId/decline", h.DeclineMember, limited)
	r.DELETE("/members/:userId", h.RemoveMember, limited)

	r.GET("/invitations", h.Invitations, cached)
	r.POST("/invitations", h.Invite, limited)
	r.POST("/invitations/accept", h.AcceptInvitation, limited)
	r.POST("/invitations/decline", h.DeclineInvitation, limited)
}
