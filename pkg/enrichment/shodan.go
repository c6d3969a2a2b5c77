package enrichment

import (
	"context"
	"net/url"
	"time"
)

// ShodanProvider queries the Shodan host API (spec §4.8). IP-only.
type ShodanProvider struct {
	httpClient
}

// NewShodanProvider constructs a ShodanProvider. baseURL defaults to the
// public API when empty.
func NewShodanProvider(apiKey, baseURL string, timeout time.Duration) *ShodanProvider {
	if baseURL == "" {
		baseURL = "https://api.shodan.io"
	}
	return &ShodanProvider{httpClient: newHTTPClient(baseURL, apiKey, timeout)}
}

func (p *ShodanProvider) Name() string { return "shodan" }

// Lookup implements Provider. Only "ip" is supported.
func (p *ShodanProvider) Lookup(ctx context.Context, iocType, iocValue string) Result {
	if iocType != "ip" {
		return Result{Provider: "shodan", IOCType: iocType, IOCValue: iocValue, Error: "shodan only supports IP lookups"}
	}

	params := url.Values{"key": {p.apiKey}}
	data, err := p.get(ctx, "/shodan/host/"+url.PathEscape(iocValue), params, nil)
	if err != nil {
		return Result{Provider: "shodan", IOCType: iocType, IOCValue: iocValue, Error: err.Error()}
	}

	ports := asSlice(data["ports"])
	vulns := asMap(data["vulns"])
	tags := asStringSlice(data["tags"])
	n := len(vulns)
	if n > 5 {
		n = 5
	}
	i := 0
	for cve := range vulns {
		if i >= n {
			break
		}
		tags = append(tags, "CVE:"+cve)
		i++
	}

	return Result{
		Provider:  "shodan",
		IOCType:   "ip",
		IOCValue:  iocValue,
		Malicious: boolPtr(len(vulns) > 0),
		Score:     floatPtr(minFloat(1.0, float64(len(vulns))*0.1)),
		Country:   asString(data["country_code"]),
		ASN:       asString(data["asn"]),
		ISP:       asString(data["isp"]),
		Tags:      tags,
		LastSeen:  asString(data["last_update"]),
		Raw: map[string]any{
			"ports":     ports,
			"vulns":     vulnKeys(vulns),
			"hostnames": data["hostnames"],
			"os":        data["os"],
			"org":       data["org"],
		},
	}
}

func vulnKeys(vulns map[string]any) []string {
	keys := make([]string, 0, len(vulns))
	for k := range vulns {
		keys = append(keys, k)
	}
	return keys
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
