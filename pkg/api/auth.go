package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/auth"
	"github.com/sentryhound/sentryhound/pkg/database"
	"github.com/sentryhound/sentryhound/pkg/models"
)

// registerHandler handles POST /auth/register. Allowed unconditionally only
// when the user table is empty — that first registrant becomes admin
// (spec §6); every registration after that is rejected, since there is no
// self-service account creation once the deployment has an admin.
func (s *Server) registerHandler(c *echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	count, err := s.users.Count(ctx)
	if err != nil {
		return mapDomainError(err)
	}
	if count > 0 {
		return echo.NewHTTPError(http.StatusForbidden, "registration is closed")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return mapDomainError(err)
	}

	u := &models.User{
		ID:           newID(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusCreated, newUserResponse(u))
}

// loginHandler handles POST /auth/login.
func (s *Server) loginHandler(c *echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	u, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if err == database.ErrNotFound {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return mapDomainError(err)
	}
	if !u.Active || !auth.CheckPassword(u.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	return s.issueTokenResponse(c, u)
}

// refreshHandler handles POST /auth/refresh. The user's current role is
// re-read from the database rather than trusted from any stale claim, so a
// demoted or deactivated account cannot mint a fresh access token.
func (s *Server) refreshHandler(c *echo.Context) error {
	var req RefreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	claims, err := s.issuer.Verify(req.RefreshToken, auth.TokenRefresh)
	if err != nil {
		return mapDomainError(err)
	}

	ctx := c.Request().Context()
	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		if err == database.ErrNotFound {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return mapDomainError(err)
	}
	if !u.Active {
		return echo.NewHTTPError(http.StatusUnauthorized, "account deactivated")
	}

	return s.issueTokenResponse(c, u)
}

// changePasswordHandler handles POST /auth/change-password.
func (s *Server) changePasswordHandler(c *echo.Context) error {
	var req ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	p := principalFromContext(c)
	ctx := c.Request().Context()
	u, err := s.users.Get(ctx, p.Subject)
	if err != nil {
		return mapDomainError(err)
	}
	if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
		return echo.NewHTTPError(http.StatusUnauthorized, "current password is incorrect")
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return mapDomainError(err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return mapDomainError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) issueTokenResponse(c *echo.Context, u *models.User) error {
	access, err := s.issuer.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return mapDomainError(err)
	}
	refresh, err := s.issuer.IssueRefreshToken(u.ID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		User:         newUserResponse(u),
	})
}
