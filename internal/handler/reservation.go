package handler

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tee-time-reservation/internal/middleware"
	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/reservation"
)

// ReservationService is the part of the coordinator the HTTP layer calls.
type ReservationService interface {
	Create(ctx context.Context, ownerID string, spec reservation.CreateSpec) (model.Reservation, error)
	RequestToJoin(ctx context.Context, id, userID string) (model.Reservation, error)
	Approve(ctx context.Context, id, playerID, approverID string) (model.Reservation, error)
	Remove(ctx context.Context, id, playerID, actorID string) (model.Reservation, error)
	Cancel(ctx context.Context, id, actorID string) (model.Reservation, error)
	Invite(ctx context.Context, id, inviteeID, inviterID string) (model.Reservation, error)
	Update(ctx context.Context, id, actorID string, patch reservation.Patch) (model.Reservation, error)
	Accept(ctx context.Context, id, userID string) (model.Reservation, error)
	Decline(ctx context.Context, id, userID, actorID string) (model.Reservation, error)

	Get(ctx context.Context, id string) (reservation.View, error)
	ListMemberships(ctx context.Context, id string) ([]model.Membership, error)
	ListInvitations(ctx context.Context, id string) ([]model.Invitation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Reservation, error)
}

// ReservationHandler exposes the reservation coordinator over HTTP.  All
// methods assume JWTAuth already ran; the caller is the acting user.
type ReservationHandler struct {
	log      *slog.Logger
	svc      ReservationService
	validate *validator.Validate
}

// NewReservationHandler panics on a nil service.
func NewReservationHandler(log *slog.Logger, svc ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ReservationHandler{
		log:      log.With(slog.String("op", "handler.ReservationHandler")),
		svc:      svc,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type createReservationRequest struct {
	Capacity    int       `json:"capacity" validate:"required,min=2,max=64"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Location    string    `json:"location" validate:"required,max=255"`
	Description string    `json:"description" validate:"max=2000"`
	Visibility  string    `json:"visibility" validate:"omitempty,oneof=public restricted private"`
}

type updateReservationRequest struct {
	Capacity    *int       `json:"capacity" validate:"omitempty,min=2,max=64"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Location    *string    `json:"location" validate:"omitempty,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Visibility  *string    `json:"visibility" validate:"omitempty,oneof=public restricted private"`
}

type inviteRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// bind decodes and validates the request body into dst.
func (h *ReservationHandler) bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return badRequest(c, validationMessage(err))
	}
	return nil
}

// Create handles POST /v1/reservations.  The caller becomes the owner.
func (h *ReservationHandler) Create(c echo.Context) error {
	var body createReservationRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	res, err := h.svc.Create(c.Request().Context(), middleware.UserID(c), reservation.CreateSpec{
		Capacity:    body.Capacity,
		ScheduledAt: body.ScheduledAt,
		Location:    body.Location,
		Description: body.Description,
		Visibility:  model.Visibility(body.Visibility),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	view, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Update handles PATCH /v1/reservations/:id.  Only the owner may edit and
// absent fields stay unchanged.
func (h *ReservationHandler) Update(c echo.Context) error {
	var body updateReservationRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	patch := reservation.Patch{
		Capacity:    body.Capacity,
		ScheduledAt: body.ScheduledAt,
		Location:    body.Location,
		Description: body.Description,
	}
	if body.Visibility != nil {
		v := model.Visibility(*body.Visibility)
		patch.Visibility = &v
	}
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Update(ctx, c.Param("id"), caller, patch)
	})
}

// Join handles POST /v1/reservations/:id/join.
func (h *ReservationHandler) Join(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.RequestToJoin(ctx, c.Param("id"), caller)
	})
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Cancel(ctx, c.Param("id"), caller)
	})
}

// Members handles GET /v1/reservations/:id/members.
func (h *ReservationHandler) Members(c echo.Context) error {
	members, err := h.svc.ListMemberships(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"members": members})
}

// Approve handles POST /v1/reservations/:id/members/:userId/approve.
func (h *ReservationHandler) Approve(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Approve(ctx, c.Param("id"), c.Param("userId"), caller)
	})
}

// DeclineMember handles POST /v1/reservations/:id/members/:userId/decline,
// the owner turning down a pending player.
func (h *ReservationHandler) DeclineMember(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Decline(ctx, c.Param("id"), c.Param("userId"), caller)
	})
}

// RemoveMember handles DELETE /v1/reservations/:id/members/:userId.  A
// player may remove themselves; the owner may remove anyone but themselves.
func (h *ReservationHandler) RemoveMember(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Remove(ctx, c.Param("id"), c.Param("userId"), caller)
	})
}

// Invitations handles GET /v1/reservations/:id/invitations.
func (h *ReservationHandler) Invitations(c echo.Context) error {
	invites, err := h.svc.ListInvitations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"invitations": invites})
}

// Invite handles POST /v1/reservations/:id/invitations.
func (h *ReservationHandler) Invite(c echo.Context) error {
	var body inviteRequest
	if err := h.bind(c, &body); err != nil {
		return err
	}
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Invite(ctx, c.Param("id"), strings.TrimSpace(body.UserID), caller)
	})
}

// AcceptInvitation handles POST /v1/reservations/:id/invitations/accept.
func (h *ReservationHandler) AcceptInvitation(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Accept(ctx, c.Param("id"), caller)
	})
}

// DeclineInvitation handles POST /v1/reservations/:id/invitations/decline.
func (h *ReservationHandler) DeclineInvitation(c echo.Context) error {
	return h.respond(c, func(ctx context.Context, caller string) (model.Reservation, error) {
		return h.svc.Decline(ctx, c.Param("id"), caller, caller)
	})
}

// Mine handles GET /v1/my-reservations.
func (h *ReservationHandler) Mine(c echo.Context) error {
	list, err := h.svc.ListForUser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}

func (h *ReservationHandler) respond(c echo.Context, call func(ctx context.Context, caller string) (model.Reservation, error)) error {
	res, err := call(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}
