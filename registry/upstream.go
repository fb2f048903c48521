package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rmux/axion-bot/telemetry"
)

const (
	// DefaultDevicesURL is the official device registry location.
	DefaultDevicesURL = "https://raw.githubusercontent.com/AxionAOSP/official_devices/main/dinfo.json"

	// DefaultTimeout is the default timeout for upstream requests.
	DefaultTimeout = 30 * time.Second
)

// Upstream fetches the raw device registry document and normalizes it
// through the configured Source.
type Upstream struct {
	url    string
	source Source
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// UpstreamOption configures an Upstream.
type UpstreamOption func(*Upstream)

// WithDevicesURL sets the registry document URL.
func WithDevicesURL(url string) UpstreamOption {
	return func(u *Upstream) {
		u.url = url
	}
}

// WithSource sets the source shape used to parse the document.
func WithSource(source Source) UpstreamOption {
	return func(u *Upstream) {
		u.source = source
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) UpstreamOption {
	return func(u *Upstream) {
		u.client = client
	}
}

// WithLogger sets the logger for the upstream.
func WithLogger(logger *slog.Logger) UpstreamOption {
	return func(u *Upstream) {
		u.logger = logger
	}
}

// NewUpstream creates a registry client. The default source is the
// structured-array shape.
func NewUpstream(opts ...UpstreamOption) *Upstream {
	u := &Upstream{
		url:    DefaultDevicesURL,
		logger: slog.Default(),
		client: &http.Client{Timeout: DefaultTimeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.source == nil {
		u.source = NewStructuredSource(u.logger)
	}
	return u
}

// URL returns the configured registry document URL.
func (u *Upstream) URL() string { return u.url }

// Fetch retrieves the registry document and parses it into a snapshot.
// The request is cache-busted with a query timestamp so intermediate
// caches never serve a stale device list.
func (u *Upstream) Fetch(ctx context.Context) (*Snapshot, error) {
	url := fmt.Sprintf("%s?t=%d", u.url, u.now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := u.now()
	resp, err := u.client.Do(req)
	if err != nil {
		telemetry.ObserveUpstreamFetch("devices", "error", u.now().Sub(start))
		return nil, fmt.Errorf("fetching device registry: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		telemetry.ObserveUpstreamFetch("devices", "error", u.now().Sub(start))
		return nil, fmt.Errorf("device registry returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.ObserveUpstreamFetch("devices", "error", u.now().Sub(start))
		return nil, fmt.Errorf("reading device registry: %w", err)
	}
	telemetry.ObserveUpstreamFetch("devices", "ok", u.now().Sub(start))

	snap, err := u.source.Parse(data)
	if err != nil {
		return nil, err
	}

	u.logger.Info("loaded device registry",
		"source", u.source.Name(),
		"devices", len(snap.Devices),
	)
	return snap, nil
}
