package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
)

var validate = validator.New()

// bindAndValidate decodes the request body into dst and runs struct-tag
// validation, collapsing both failure modes to the 400 the spec's error
// table calls for.
func bindAndValidate(c *echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		return mapDomainError(err)
	}
	return nil
}

// newID mints a new random identifier for a domain entity.
func newID() string {
	return uuid.New().String()
}
