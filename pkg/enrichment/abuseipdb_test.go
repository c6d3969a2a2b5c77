package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbuseIPDBProvider_ParsesCheckResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check", r.URL.Path)
		assert.Equal(t, "9.9.9.9", r.URL.Query().Get("ipAddress"))
		assert.Equal(t, "test-key", r.Header.Get("Key"))
		w.Write([]byte(`{"data":{"abuseConfidenceScore":80,"countryCode":"CN","isp":"Example","lastReportedAt":"2026-01-01","reports":[{"categories":[18,22]}]}}`))
	}))
	defer srv.Close()

	p := NewAbuseIPDBProvider("test-key", srv.URL, 0)
	result := p.Lookup(context.Background(), "ip", "9.9.9.9")

	require.Empty(t, result.Error)
	require.NotNil(t, result.Malicious)
	assert.True(t, *result.Malicious)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.8, *result.Score, 0.0001)
	assert.Contains(t, result.Tags, "Brute-Force")
	assert.Contains(t, result.Tags, "SSH")
}

func TestAbuseIPDBProvider_RejectsNonIPLookups(t *testing.T) {
	p := NewAbuseIPDBProvider("key", "http://unused.invalid", 0)
	result := p.Lookup(context.Background(), "hash", "deadbeef")
	assert.NotEmpty(t, result.Error)
}

func TestAbuseIPDBProvider_LowScoreIsNotMalicious(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"abuseConfidenceScore":5}}`))
	}))
	defer srv.Close()

	p := NewAbuseIPDBProvider("key", srv.URL, 0)
	result := p.Lookup(context.Background(), "ip", "1.1.1.1")
	require.NotNil(t, result.Malicious)
	assert.False(t, *result.Malicious)
}
