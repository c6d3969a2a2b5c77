package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// Resolver resolves a models.CredentialBundle for an asset following spec
// §4.3's precedence: vault → encrypted DB fields → environment variables.
type Resolver struct {
	secret       string // process secret; also the AEAD key material for DB-stored fields
	vaultEnabled bool
	vault        *VaultClient
}

// NewResolver constructs a Resolver. vault may be nil when vaultEnabled is false.
func NewResolver(secret string, vaultEnabled bool, vault *VaultClient) *Resolver {
	return &Resolver{secret: secret, vaultEnabled: vaultEnabled, vault: vault}
}

// Resolve returns the plaintext credential bundle for asset, choosing the
// precedence tier per spec §4.3. Vault-sourced or DB-sourced credentials
// always take priority over environment fallback, which is intended for
// development only.
func (r *Resolver) Resolve(ctx context.Context, asset *models.Asset) (*models.CredentialBundle, error) {
	if r.vaultEnabled {
		if asset.VaultPath == "" {
			return nil, fmt.Errorf("no vault path configured for asset %s", asset.ID)
		}
		return r.resolveFromVault(ctx, asset)
	}

	if len(asset.SSHPasswordEnc) > 0 || len(asset.SSHKeyEnc) > 0 {
		return r.resolveFromDB(asset)
	}

	slog.Warn("vault disabled — reading credentials from environment (dev mode only)", "asset_id", asset.ID)
	return r.resolveFromEnv(asset), nil
}

func (r *Resolver) resolveFromVault(ctx context.Context, asset *models.Asset) (*models.CredentialBundle, error) {
	secrets, err := r.vault.ReadSecret(ctx, asset.VaultPath)
	if err != nil {
		return nil, fmt.Errorf("resolve vault credentials for asset %s: %w", asset.ID, err)
	}

	bundle := &models.CredentialBundle{
		Username:   firstNonEmpty(secrets["username"], asset.Username, "root"),
		SSHKey:     secrets["ssh_key"],
		SudoMethod: asset.SudoMethod,
	}
	if pw, ok := secrets["ssh_password"]; ok {
		bundle.SSHPassword = pw
	}
	applySudoPasswordRule(bundle, asset, secrets["sudo_password"])
	return bundle, nil
}

func (r *Resolver) resolveFromDB(asset *models.Asset) (*models.CredentialBundle, error) {
	bundle := &models.CredentialBundle{
		Username:   firstNonEmpty(asset.Username, "root"),
		SudoMethod: asset.SudoMethod,
	}

	if len(asset.SSHKeyEnc) > 0 {
		key, err := Decrypt(r.secret, asset.SSHKeyEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt ssh key for asset %s: %w", asset.ID, err)
		}
		bundle.SSHKey = key
	}
	if len(asset.SSHPasswordEnc) > 0 {
		pw, err := Decrypt(r.secret, asset.SSHPasswordEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt ssh password for asset %s: %w", asset.ID, err)
		}
		bundle.SSHPassword = pw
	}

	var dbSudoPassword string
	if len(asset.SudoPasswordEnc) > 0 {
		pw, err := Decrypt(r.secret, asset.SudoPasswordEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt sudo password for asset %s: %w", asset.ID, err)
		}
		dbSudoPassword = pw
	}
	applySudoPasswordRule(bundle, asset, dbSudoPassword)
	return bundle, nil
}

func (r *Resolver) resolveFromEnv(asset *models.Asset) *models.CredentialBundle {
	safeID := strings.ReplaceAll(strings.ToUpper(asset.ID), "-", "_")
	bundle := &models.CredentialBundle{
		Username:   firstNonEmpty(os.Getenv(fmt.Sprintf("ASSET_%s_SSH_USERNAME", safeID)), "root"),
		SSHKey:     os.Getenv(fmt.Sprintf("ASSET_%s_SSH_KEY", safeID)),
		SudoMethod: asset.SudoMethod,
	}
	bundle.SSHPassword = os.Getenv(fmt.Sprintf("ASSET_%s_SSH_PASSWORD", safeID))
	applySudoPasswordRule(bundle, asset, "")
	return bundle
}

// applySudoPasswordRule implements the derived sudo-password rule from
// get_asset_credentials: ssh_password method reuses the SSH password,
// custom_password uses the separately-resolved custom password, nopasswd/none
// need nothing.
func applySudoPasswordRule(bundle *models.CredentialBundle, asset *models.Asset, customSudoPassword string) {
	switch asset.SudoMethod {
	case models.SudoSSHPassword:
		bundle.SudoPassword = bundle.SSHPassword
	case models.SudoCustomPassword:
		bundle.SudoPassword = customSudoPassword
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
