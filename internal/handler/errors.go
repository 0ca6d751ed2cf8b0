package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/reservation"
)

// retryAfterSeconds is advertised on CONCURRENT_MODIFICATION responses.
const retryAfterSeconds = "1"

// statusFor maps a coordinator error kind onto an HTTP status code.
func statusFor(kind reservation.Kind) int {
	switch kind {
	case reservation.KindNotFound:
		return http.StatusNotFound
	case reservation.KindPermissionDenied:
		return http.StatusForbidden
	case reservation.KindInvalidState, reservation.KindFull,
		reservation.KindAlreadyMember, reservation.KindConcurrentModification:
		return http.StatusConflict
	case reservation.KindInvalidArgument:
		return http.StatusBadRequest
	case reservation.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": code, "message": msg}.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var rerr *reservation.Error
	if !errors.As(err, &rerr) {
		log.Error("unclassified error", slog.String("path", c.Path()), sl.Err(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
	}
	status := statusFor(rerr.Kind)
	if rerr.Kind == reservation.KindConcurrentModification {
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("path", c.Path()), sl.Err(err))
	}
	msg := rerr.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(rerr.Kind), "_", " "))
	}
	return c.JSON(status, echo.Map{"error": strings.ToLower(string(rerr.Kind)), "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_argument", "message": msg})
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "min":
			parts = append(parts, fe.Field()+" must be at least "+fe.Param())
		case "max":
			parts = append(parts, fe.Field()+" must be at most "+fe.Param())
		case "oneof":
			parts = append(parts, fe.Field()+" must be one of: "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
