package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirusTotalProvider_ParsesIPAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ip_addresses/1.2.3.4", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-apikey"))
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"data":{"attributes":{"country":"US","asn":1234,"as_owner":"Example ISP","tags":["cdn"],"last_analysis_stats":{"malicious":2,"harmless":8}}}}`))
	}))
	defer srv.Close()

	p := NewVirusTotalProvider("test-key", srv.URL, 0)
	result := p.Lookup(context.Background(), "ip", "1.2.3.4")

	require.Empty(t, result.Error)
	require.NotNil(t, result.Malicious)
	assert.True(t, *result.Malicious)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.2, *result.Score, 0.0001)
	assert.Equal(t, "US", result.Country)
	assert.Equal(t, []string{"cdn"}, result.Tags)
}

func TestVirusTotalProvider_UnsupportedIOCType(t *testing.T) {
	p := NewVirusTotalProvider("key", "http://unused.invalid", 0)
	result := p.Lookup(context.Background(), "user", "alice")
	assert.NotEmpty(t, result.Error)
}

func TestVirusTotalProvider_HTTPErrorSurfacesAsResultError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewVirusTotalProvider("key", srv.URL, 0)
	result := p.Lookup(context.Background(), "ip", "1.2.3.4")
	assert.NotEmpty(t, result.Error)
}
