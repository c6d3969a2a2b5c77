package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShodanProvider_ParsesHostWithVulns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shodan/host/5.6.7.8", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"country_code":"DE","isp":"Example Net","ports":[22,80],"vulns":{"CVE-2021-1234":{}},"last_update":"2026-01-01"}`))
	}))
	defer srv.Close()

	p := NewShodanProvider("test-key", srv.URL, 0)
	result := p.Lookup(context.Background(), "ip", "5.6.7.8")

	require.Empty(t, result.Error)
	require.NotNil(t, result.Malicious)
	assert.True(t, *result.Malicious)
	assert.Equal(t, "DE", result.Country)
	assert.Contains(t, result.Tags, "CVE:CVE-2021-1234")
}

func TestShodanProvider_RejectsNonIPLookups(t *testing.T) {
	p := NewShodanProvider("key", "http://unused.invalid", 0)
	result := p.Lookup(context.Background(), "domain", "example.com")
	assert.NotEmpty(t, result.Error)
}
