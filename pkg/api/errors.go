package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/auth"
	"github.com/sentryhound/sentryhound/pkg/database"
	"github.com/sentryhound/sentryhound/pkg/session"
)

// mapDomainError maps the sentinel errors surfaced by pkg/session,
// pkg/database, and pkg/auth to the exact HTTP status codes spec §6 assigns:
// 400 validation, 401 unauthenticated, 404 unknown resource, 409 invalid
// state transition, 503 session capacity exhausted.
func mapDomainError(err error) *echo.HTTPError {
	var validErrs validator.ValidationErrors
	if errors.As(err, &validErrs) {
		return echo.NewHTTPError(http.StatusBadRequest, validErrs.Error())
	}

	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, session.ErrCapacityExhausted):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "capacity_exhausted")
	case errors.Is(err, session.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	slog.Error("unexpected domain error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
