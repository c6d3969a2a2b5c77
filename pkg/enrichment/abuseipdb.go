package enrichment

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// AbuseIPDBProvider queries the AbuseIPDB v2 check endpoint (spec §4.8).
// IP-only.
type AbuseIPDBProvider struct {
	httpClient
}

// NewAbuseIPDBProvider constructs an AbuseIPDBProvider. baseURL defaults to
// the public API when empty.
func NewAbuseIPDBProvider(apiKey, baseURL string, timeout time.Duration) *AbuseIPDBProvider {
	if baseURL == "" {
		baseURL = "https://api.abuseipdb.com/api/v2"
	}
	return &AbuseIPDBProvider{httpClient: newHTTPClient(baseURL, apiKey, timeout)}
}

func (p *AbuseIPDBProvider) Name() string { return "abuseipdb" }

func (p *AbuseIPDBProvider) headers() map[string]string {
	return map[string]string{"Key": p.apiKey, "Accept": "application/json"}
}

var abuseCategoryNames = map[int]string{
	3: "Fraud Orders", 4: "DDoS Attack", 5: "FTP Brute-Force",
	6: "Ping of Death", 7: "Phishing", 8: "Fraud VoIP",
	9: "Open Proxy", 10: "Web Spam", 11: "Email Spam",
	12: "Blog Spam", 13: "VPN IP", 14: "Port Scan",
	15: "Hacking", 16: "SQL Injection", 17: "Spoofing",
	18: "Brute-Force", 19: "Bad Web Bot", 20: "Exploited Host",
	21: "Web App Attack", 22: "SSH", 23: "IoT Targeted",
}

// Lookup implements Provider. Only "ip" is supported.
func (p *AbuseIPDBProvider) Lookup(ctx context.Context, iocType, iocValue string) Result {
	if iocType != "ip" {
		return Result{Provider: "abuseipdb", IOCType: iocType, IOCValue: iocValue, Error: "abuseipdb only supports IP lookups"}
	}

	params := url.Values{
		"ipAddress":    {iocValue},
		"maxAgeInDays": {"90"},
		"verbose":      {"true"},
	}
	data, err := p.get(ctx, "/check", params, p.headers())
	if err != nil {
		return Result{Provider: "abuseipdb", IOCType: iocType, IOCValue: iocValue, Error: err.Error()}
	}

	info := asMap(data["data"])
	abuseScore := asFloat(info["abuseConfidenceScore"])
	score := abuseScore / 100.0

	var categories []string
	seen := make(map[string]bool)
	reports := asSlice(info["reports"])
	n := len(reports)
	if n > 5 {
		n = 5
	}
	for _, r := range reports[:n] {
		report := asMap(r)
		for _, catID := range asSlice(report["categories"]) {
			id := int(asFloat(catID))
			label, ok := abuseCategoryNames[id]
			if !ok {
				label = strconv.Itoa(id)
			}
			if !seen[label] {
				seen[label] = true
				categories = append(categories, label)
			}
		}
	}
	if len(categories) > 8 {
		categories = categories[:8]
	}

	return Result{
		Provider:  "abuseipdb",
		IOCType:   "ip",
		IOCValue:  iocValue,
		Malicious: boolPtr(abuseScore >= 25),
		Score:     floatPtr(score),
		Country:   asString(info["countryCode"]),
		ISP:       asString(info["isp"]),
		Tags:      categories,
		LastSeen:  asString(info["lastReportedAt"]),
		Raw: map[string]any{
			"abuse_confidence_score": abuseScore,
			"total_reports":          info["totalReports"],
			"distinct_users":         info["numDistinctUsers"],
			"usage_type":             info["usageType"],
			"is_tor":                 asBool(info["isTor"]),
			"is_public":              info["isPublic"],
		},
	}
}
