// Package ota fetches per-device build metadata from the OTA feed.
package ota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/telemetry"
)

const (
	// DefaultBaseURL is the official OTA feed root. Build descriptors live
	// at {base}/{VARIANT}/{codename}.json.
	DefaultBaseURL = "https://raw.githubusercontent.com/AxionAOSP/official_devices/main/OTA"

	// DefaultTimeout is the default timeout for upstream requests.
	DefaultTimeout = 30 * time.Second

	// probeCodename is a device with known published builds, used by the
	// connectivity probe.
	probeCodename = "a71"
)

// ErrNotFound is returned when no build is published for a
// (codename, variant) pair. It is a normal negative result, not a failure.
var ErrNotFound = errors.New("build not found")

// Upstream fetches build descriptors from the OTA feed.
type Upstream struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// UpstreamOption configures an Upstream.
type UpstreamOption func(*Upstream)

// WithBaseURL sets the OTA feed root URL.
func WithBaseURL(url string) UpstreamOption {
	return func(u *Upstream) {
		u.baseURL = strings.TrimSuffix(url, "/")
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

// NewUpstream creates an OTA feed client.
func NewUpstream(opts ...UpstreamOption) *Upstream {
	u := &Upstream{
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
		client:  &http.Client{Timeout: DefaultTimeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// buildDocument is the wire shape of a build descriptor file. Entries are
// ordered newest-first.
type buildDocument struct {
	Response []buildEntry `json:"response"`
}

type buildEntry struct {
	Filename string `json:"filename"`
	Version  string `json:"version"`
	Size     int64  `json:"size"`
	Datetime int64  `json:"datetime"`
	URL      string `json:"url"`
	MD5Sum   string `json:"md5sum"`
}

// FetchBuild retrieves the latest build for a (codename, variant) pair.
// A missing descriptor file or an empty build list yields ErrNotFound.
func (u *Upstream) FetchBuild(ctx context.Context, codename string, variant axionbot.Variant) (*axionbot.BuildInfo, error) {
	url := fmt.Sprintf("%s?t=%d", u.DescriptorURL(codename, variant), u.now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := u.now()
	resp, err := u.client.Do(req)
	if err != nil {
		telemetry.ObserveUpstreamFetch("ota", "error", u.now().Sub(start))
		return nil, fmt.Errorf("fetching build data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		telemetry.ObserveUpstreamFetch("ota", "not_found", u.now().Sub(start))
		u.logger.Info("no build descriptor published",
			"codename", codename,
			"variant", variant,
		)
		return nil, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		telemetry.ObserveUpstreamFetch("ota", "error", u.now().Sub(start))
		return nil, fmt.Errorf("build feed returned %d", resp.StatusCode)
	}

	var doc buildDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		telemetry.ObserveUpstreamFetch("ota", "error", u.now().Sub(start))
		return nil, fmt.Errorf("decoding build data: %w", err)
	}
	telemetry.ObserveUpstreamFetch("ota", "ok", u.now().Sub(start))

	if len(doc.Response) == 0 {
		u.logger.Info("empty build list",
			"codename", codename,
			"variant", variant,
		)
		return nil, ErrNotFound
	}

	latest := doc.Response[0]
	return &axionbot.BuildInfo{
		Codename: codename,
		Variant:  variant,
		Version:  latest.Version,
		Filename: latest.Filename,
		Size:     axionbot.HumanSize(latest.Size),
		Date:     axionbot.FormatTime(latest.Datetime),
		URL:      latest.URL,
		MD5:      latest.MD5Sum,
	}, nil
}

// DescriptorURL returns the canonical descriptor location for a
// (codename, variant) pair, without the cache buster.
func (u *Upstream) DescriptorURL(codename string, variant axionbot.Variant) string {
	return fmt.Sprintf("%s/%s/%s.json", u.baseURL, variant, codename)
}

// ProbeURLs returns one descriptor URL per variant for the connectivity
// test, using a device known to publish builds.
func (u *Upstream) ProbeURLs() map[string]string {
	return map[string]string{
		"vanillaOTA": u.DescriptorURL(probeCodename, axionbot.VariantVanilla),
		"gmsOTA":     u.DescriptorURL(probeCodename, axionbot.VariantGMS),
	}
}
