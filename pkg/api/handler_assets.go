package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/sentryhound/sentryhound/pkg/credentials"
	"github.com/sentryhound/sentryhound/pkg/models"
)

// createAssetHandler handles POST /api/v1/assets. Admin only (spec §6):
// asset credentials are sensitive enough that only an admin manages them.
func (s *Server) createAssetHandler(c *echo.Context) error {
	var req CreateAssetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	a := &models.Asset{
		ID:         newID(),
		Hostname:   req.Hostname,
		IP:         req.IP,
		OSType:     models.ParseOSType(req.OSType),
		Tags:       req.Tags,
		SSHPort:    req.SSHPort,
		Username:   req.Username,
		SudoMethod: models.ParseSudoMethod(req.SudoMethod),
		VaultPath:  req.VaultPath,
	}
	if err := s.encryptAssetSecrets(a, req.SSHKey, req.SSHPassword, req.SudoPassword); err != nil {
		return mapDomainError(err)
	}

	if err := s.assets.Create(c.Request().Context(), a); err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusCreated, newAssetResponse(a))
}

// listAssetsHandler handles GET /api/v1/assets.
func (s *Server) listAssetsHandler(c *echo.Context) error {
	list, err := s.assets.List(c.Request().Context())
	if err != nil {
		return mapDomainError(err)
	}
	out := make([]AssetResponse, 0, len(list))
	for _, a := range list {
		out = append(out, newAssetResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

// getAssetHandler handles GET /api/v1/assets/:id.
func (s *Server) getAssetHandler(c *echo.Context) error {
	a, err := s.assets.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, newAssetResponse(a))
}

// updateAssetHandler handles PUT /api/v1/assets/:id. A blank credential
// field in the request leaves the stored ciphertext for that field
// untouched, so a caller can update the hostname without re-submitting
// secrets it never decrypts.
func (s *Server) updateAssetHandler(c *echo.Context) error {
	var req UpdateAssetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	existing, err := s.assets.Get(ctx, id)
	if err != nil {
		return mapDomainError(err)
	}

	existing.Hostname = req.Hostname
	existing.IP = req.IP
	existing.OSType = models.ParseOSType(req.OSType)
	existing.Tags = req.Tags
	existing.SSHPort = req.SSHPort
	existing.Username = req.Username
	existing.SudoMethod = models.ParseSudoMethod(req.SudoMethod)
	existing.VaultPath = req.VaultPath

	if err := s.encryptAssetSecrets(existing, req.SSHKey, req.SSHPassword, req.SudoPassword); err != nil {
		return mapDomainError(err)
	}

	if err := s.assets.Update(ctx, existing); err != nil {
		return mapDomainError(err)
	}
	return c.JSON(http.StatusOK, newAssetResponse(existing))
}

// deleteAssetHandler handles DELETE /api/v1/assets/:id.
func (s *Server) deleteAssetHandler(c *echo.Context) error {
	if err := s.assets.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// encryptAssetSecrets AEAD-encrypts whichever of sshKey/sshPassword/
// sudoPassword are non-empty, leaving the corresponding *Enc field on a
// untouched otherwise (spec §3 invariant iv: ciphertext never leaves
// pkg/credentials/pkg/database in plaintext).
func (s *Server) encryptAssetSecrets(a *models.Asset, sshKey, sshPassword, sudoPassword string) error {
	enc := func(plaintext string) ([]byte, error) {
		if plaintext == "" {
			return nil, nil
		}
		return credentials.Encrypt(s.secret, plaintext)
	}

	if sshKey != "" {
		b, err := enc(sshKey)
		if err != nil {
			return err
		}
		a.SSHKeyEnc = b
	}
	if sshPassword != "" {
		b, err := enc(sshPassword)
		if err != nil {
			return err
		}
		a.SSHPasswordEnc = b
	}
	if sudoPassword != "" {
		b, err := enc(sudoPassword)
		if err != nil {
			return err
		}
		a.SudoPasswordEnc = b
	}
	return nil
}
