package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpstreamFetch(t *testing.T) {
	var gotCacheControl string
	var gotBuster bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		gotBuster = r.URL.Query().Get("t") != ""
		_, _ = w.Write([]byte(`{"devices": [{"codename": "a71", "device_name": "Galaxy A71"}]}`))
	}))
	defer server.Close()

	u := NewUpstream(
		WithDevicesURL(server.URL),
		WithHTTPClient(server.Client()),
	)

	snap, err := u.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Devices, 1)
	require.Equal(t, "Galaxy A71", snap.Devices["a71"].Name)
	require.Equal(t, "no-cache", gotCacheControl)
	require.True(t, gotBuster, "request should carry a cache-busting timestamp")
}

func TestUpstreamFetchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	u := NewUpstream(WithDevicesURL(server.URL), WithHTTPClient(server.Client()))

	_, err := u.Fetch(context.Background())
	require.ErrorContains(t, err, "500")
}

func TestUpstreamFetchParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"wrong": "shape"}`))
	}))
	defer server.Close()

	u := NewUpstream(WithDevicesURL(server.URL), WithHTTPClient(server.Client()))

	_, err := u.Fetch(context.Background())
	require.Error(t, err)
}

func TestUpstreamURL(t *testing.T) {
	u := NewUpstream()
	require.Equal(t, DefaultDevicesURL, u.URL())

	u = NewUpstream(WithDevicesURL("https://example.com/devices.json"))
	require.Equal(t, "https://example.com/devices.json", u.URL())
}
