package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// VaultClient is a minimal HashiCorp Vault KV-v2 client authenticating via
// AppRole, covering exactly the two calls get_asset_credentials needs: login
// and read-secret-version. No example repo ships a Vault SDK, so this talks
// to the documented HTTP API directly (see DESIGN.md).
type VaultClient struct {
	addr       string
	roleID     string
	secretID   string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewVaultClient constructs a client. Authentication happens lazily on first
// use (mirrors the original's cached-singleton-on-demand pattern).
func NewVaultClient(addr, roleID, secretID string) *VaultClient {
	return &VaultClient{
		addr:       strings.TrimRight(addr, "/"),
		roleID:     roleID,
		secretID:   secretID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type approleLoginResponse struct {
	Auth struct {
		ClientToken string `json:"client_token"`
	} `json:"auth"`
}

func (c *VaultClient) login(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"role_id": c.roleID, "secret_id": c.secretID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/v1/auth/approle/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build vault login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vault approle login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vault approle login: unexpected status %d", resp.StatusCode)
	}

	var parsed approleLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode vault login response: %w", err)
	}
	if parsed.Auth.ClientToken == "" {
		return "", fmt.Errorf("vault approle authentication failed")
	}
	return parsed.Auth.ClientToken, nil
}

func (c *VaultClient) cachedToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	tok, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok
	return tok, nil
}

type kv2Response struct {
	Data struct {
		Data map[string]string `json:"data"`
	} `json:"data"`
}

// ReadSecret reads a KV-v2 secret at path (stripped of a leading "secret/"),
// returning its string-valued fields.
func (c *VaultClient) ReadSecret(ctx context.Context, path string) (map[string]string, error) {
	token, err := c.cachedToken(ctx)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimPrefix(path, "secret/")
	url := fmt.Sprintf("%s/v1/secret/data/%s", c.addr, trimmed)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build vault read request: %w", err)
	}
	req.Header.Set("X-Vault-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault read secret: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vault read secret %q: unexpected status %d", path, resp.StatusCode)
	}

	var parsed kv2Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode vault secret response: %w", err)
	}
	return parsed.Data.Data, nil
}
