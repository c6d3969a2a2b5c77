package enrichment

import (
	"context"
	"net/url"
	"time"
)

// VirusTotalProvider queries the VirusTotal v3 REST API (spec §4.8).
type VirusTotalProvider struct {
	httpClient
}

// NewVirusTotalProvider constructs a VirusTotalProvider. baseURL defaults to
// the public API when empty.
func NewVirusTotalProvider(apiKey, baseURL string, timeout time.Duration) *VirusTotalProvider {
	if baseURL == "" {
		baseURL = "https://www.virustotal.com/api/v3"
	}
	return &VirusTotalProvider{httpClient: newHTTPClient(baseURL, apiKey, timeout)}
}

func (p *VirusTotalProvider) Name() string { return "virustotal" }

func (p *VirusTotalProvider) headers() map[string]string {
	return map[string]string{"x-apikey": p.apiKey}
}

// Lookup implements Provider for ip, domain, and hash IOC types.
func (p *VirusTotalProvider) Lookup(ctx context.Context, iocType, iocValue string) Result {
	var path string
	switch iocType {
	case "ip":
		path = "/ip_addresses/" + url.PathEscape(iocValue)
	case "domain":
		path = "/domains/" + url.PathEscape(iocValue)
	case "hash":
		path = "/files/" + url.PathEscape(iocValue)
	default:
		return Result{Provider: "virustotal", IOCType: iocType, IOCValue: iocValue, Error: "unsupported IOC type: " + iocType}
	}

	data, err := p.get(ctx, path, nil, p.headers())
	if err != nil {
		return Result{Provider: "virustotal", IOCType: iocType, IOCValue: iocValue, Error: err.Error()}
	}

	attrs := asMap(asMap(data["data"])["attributes"])
	stats := asMap(attrs["last_analysis_stats"])
	malicious := int(asFloat(stats["malicious"]))
	total := 0
	for _, v := range stats {
		total += int(asFloat(v))
	}
	if total == 0 {
		total = 1
	}
	score := float64(malicious) / float64(total)

	result := Result{
		Provider:  "virustotal",
		IOCType:   iocType,
		IOCValue:  iocValue,
		Malicious: boolPtr(malicious > 0),
		Score:     floatPtr(score),
		Tags:      asStringSlice(attrs["tags"]),
		Raw:       attrs,
	}
	if iocType == "ip" {
		result.Country = asString(attrs["country"])
		result.ASN = asStringAny(attrs["asn"])
		result.ISP = asString(attrs["as_owner"])
	}
	if iocType == "hash" {
		result.LastSeen = asString(attrs["last_analysis_date"])
	}
	return result
}
