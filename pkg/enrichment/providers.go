package enrichment

import (
	"os"
	"time"

	"github.com/sentryhound/sentryhound/pkg/config"
)

// BuildProviders instantiates one concrete Provider per configured entry,
// resolving each provider's API key from the environment variable it names
// (spec §4.8, §6: provider config is a name/base_url/api_key_env triple —
// keys never live in the config file itself). An entry naming an unknown
// provider is skipped, not fatal — the remaining providers still run.
func BuildProviders(providers []config.MCPProviderConfig, timeout time.Duration) []Provider {
	var out []Provider
	for _, p := range providers {
		apiKey := os.Getenv(p.APIKeyEnv)
		if apiKey == "" {
			continue
		}
		switch p.Name {
		case "virustotal":
			out = append(out, NewVirusTotalProvider(apiKey, p.BaseURL, timeout))
		case "shodan":
			out = append(out, NewShodanProvider(apiKey, p.BaseURL, timeout))
		case "abuseipdb":
			out = append(out, NewAbuseIPDBProvider(apiKey, p.BaseURL, timeout))
		}
	}
	return out
}
