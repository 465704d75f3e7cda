package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
)

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestNewFillsZeroValues(t *testing.T) {
	client := New(Config{})
	assert.Equal(t, defaults.ProbeTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, defaults.MaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, defaults.MaxConnsPerHost, transport.MaxConnsPerHost)
}

func TestRedirectsNotFollowedByDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.Write([]byte("end"))
	}))
	defer server.Close()

	resp, err := New(DefaultConfig()).Get(server.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.Write([]byte("end"))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.FollowRedirects = true
	resp, err := New(cfg).Get(server.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMalformedProxyIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy = "://not-a-url"
	client := New(cfg)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, transport.Proxy)
}

func TestWithTimeout(t *testing.T) {
	cfg := WithTimeout(3 * time.Second)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, defaults.MaxIdleConns, cfg.MaxIdleConns)
}
