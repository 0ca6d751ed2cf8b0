package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/middleware"
	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
)

// ProfileStore reads and writes the caller's public profile.
type ProfileStore interface {
	Upsert(ctx context.Context, u model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
}

// ProfileHandler serves /v1/me.  Profiles only decorate notifications and
// never influence reservation decisions.
type ProfileHandler struct {
	log      *slog.Logger
	users    ProfileStore
	validate *validator.Validate
}

func NewProfileHandler(log *slog.Logger, users ProfileStore) *ProfileHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ProfileHandler{
		log:      log.With(slog.String("op", "handler.ProfileHandler")),
		users:    users,
		validate: newValidator(),
	}
}

type profileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url,max=512"`
}

// Me returns the caller's profile, falling back to a bare summary when the
// caller never saved one.
func (h *ProfileHandler) Me(c echo.Context) error {
	uid := middleware.UserID(c)
	u, err := h.users.GetByID(c.Request().Context(), uid)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusOK, model.ProfileSummary{UserID: uid, DisplayName: uid})
	case err != nil:
		h.log.Error("profile lookup failed", slog.String("user_id", uid), sl.Err(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": "profile store unavailable"})
	}
	return c.JSON(http.StatusOK, u.Summary())
}

// UpdateMe handles PUT /v1/me.
func (h *ProfileHandler) UpdateMe(c echo.Context) error {
	var body profileRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(&body); err != nil {
		return badRequest(c, validationMessage(err))
	}
	u := model.User{ID: middleware.UserID(c), DisplayName: body.DisplayName, AvatarURL: body.AvatarURL}
	if err := h.users.Upsert(c.Request().Context(), u); err != nil {
		h.log.Error("profile save failed", slog.String("user_id", u.ID), sl.Err(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": "profile store unavailable"})
	}
	return c.JSON(http.StatusOK, u.Summary())
}
