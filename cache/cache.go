// Package cache provides TTL memoization over the device registry and OTA
// build feed. Concurrent refreshes of the same key are deduplicated with
// singleflight so at most one upstream fetch is in flight per key.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/ota"
	"github.com/rmux/axion-bot/registry"
	"github.com/rmux/axion-bot/telemetry"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long cached values stay fresh.
const DefaultTTL = 60 * time.Second

// RegistryClient fetches and normalizes the device registry.
type RegistryClient interface {
	Fetch(ctx context.Context) (*registry.Snapshot, error)
}

// BuildClient fetches build descriptors from the OTA feed.
type BuildClient interface {
	FetchBuild(ctx context.Context, codename string, variant axionbot.Variant) (*axionbot.BuildInfo, error)
}

// Stats summarizes the current cache contents.
type Stats struct {
	Devices       int
	Maintainers   int
	SupportGroups int
	VanillaBuilds int
	GMSBuilds     int
	LastRefresh   time.Time
}

type buildRecord struct {
	build     *axionbot.BuildInfo
	fetchedAt time.Time
}

// Cache is the process-wide memoization layer. Construct it once and pass
// it by reference; all mutation goes through its methods.
type Cache struct {
	registry RegistryClient
	builds   BuildClient
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	deviceGroup singleflight.Group
	buildGroup  singleflight.Group

	mu           sync.RWMutex
	snapshot     *registry.Snapshot
	fetchedAt    time.Time
	buildRecords map[string]buildRecord
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window for cached values.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache over the given upstream clients.
func New(reg RegistryClient, builds BuildClient, opts ...Option) *Cache {
	c := &Cache{
		registry:     reg,
		builds:       builds,
		ttl:          DefaultTTL,
		logger:       slog.Default(),
		now:          time.Now,
		buildRecords: map[string]buildRecord{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Devices returns the current device snapshot, refreshing from upstream
// when the cached one is stale, absent, or force is set. A failed refresh
// logs, leaves any previously cached snapshot untouched, and returns an
// empty snapshot to the caller.
func (c *Cache) Devices(ctx context.Context, force bool) *registry.Snapshot {
	if !force {
		c.mu.RLock()
		if c.snapshot != nil && c.now().Sub(c.fetchedAt) < c.ttl {
			snap := c.snapshot
			c.mu.RUnlock()
			telemetry.RecordCacheResult("devices", "hit")
			return snap
		}
		c.mu.RUnlock()
	}

	telemetry.RecordCacheResult("devices", "miss")
	v, err, shared := c.deviceGroup.Do("devices", func() (any, error) {
		return c.registry.Fetch(ctx)
	})
	if err != nil {
		telemetry.RecordCacheResult("devices", "error")
		c.logger.Error("device registry refresh failed", "error", err)
		return registry.NewSnapshot()
	}

	snap := v.(*registry.Snapshot)
	c.mu.Lock()
	c.snapshot = snap
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Debug("device registry refreshed",
		"devices", len(snap.Devices),
		"shared", shared,
		"forced", force,
	)
	return snap
}

// Build returns the latest build for a (codename, variant) pair, or nil
// when none is published or the fetch fails. Entries are cached per key;
// a failure never touches an existing still-fresh entry.
func (c *Cache) Build(ctx context.Context, codename string, variant axionbot.Variant, force bool) *axionbot.BuildInfo {
	key := codename + "_" + string(variant)

	if !force {
		c.mu.RLock()
		if rec, ok := c.buildRecords[key]; ok && c.now().Sub(rec.fetchedAt) < c.ttl {
			c.mu.RUnlock()
			telemetry.RecordCacheResult("build", "hit")
			return rec.build
		}
		c.mu.RUnlock()
	}

	telemetry.RecordCacheResult("build", "miss")
	v, err, _ := c.buildGroup.Do(key, func() (any, error) {
		return c.builds.FetchBuild(ctx, codename, variant)
	})
	if err != nil {
		if errors.Is(err, ota.ErrNotFound) {
			c.logger.Info("no build available", "codename", codename, "variant", variant)
		} else {
			telemetry.RecordCacheResult("build", "error")
			c.logger.Error("build fetch failed",
				"codename", codename,
				"variant", variant,
				"error", err,
			)
		}
		return nil
	}

	build := v.(*axionbot.BuildInfo)
	c.mu.Lock()
	c.buildRecords[key] = buildRecord{build: build, fetchedAt: c.now()}
	c.mu.Unlock()
	return build
}

// InsertDevice adds a transient entry to the live snapshot, used when a
// build exists for a codename the registry does not list. The entry lives
// only until the next refresh or clear. The snapshot is replaced, not
// mutated, since callers may still be reading the old one. The refresh
// timestamp is left alone: only a real upstream fetch marks the snapshot
// fresh, so a synthetic entry inserted during an outage never suppresses
// the next refetch.
func (c *Cache) InsertDevice(codename string, info axionbot.DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := registry.NewSnapshot()
	if c.snapshot != nil {
		for k, v := range c.snapshot.Devices {
			next.Devices[k] = v
		}
	}
	next.Devices[strings.ToLower(codename)] = info
	c.snapshot = next
}

// Clear unconditionally resets all cached state.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
	c.buildRecords = map[string]buildRecord{}
	c.logger.Info("cache cleared")
}

// Stats reports current cache contents without touching upstream.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{LastRefresh: c.fetchedAt}
	if c.snapshot != nil {
		s.Devices = len(c.snapshot.Devices)
		for _, d := range c.snapshot.Devices {
			if d.Maintainer != "" {
				s.Maintainers++
			}
			if d.SupportGroup != "" {
				s.SupportGroups++
			}
		}
	}
	for key := range c.buildRecords {
		switch {
		case strings.HasSuffix(key, "_"+string(axionbot.VariantVanilla)):
			s.VanillaBuilds++
		case strings.HasSuffix(key, "_"+string(axionbot.VariantGMS)):
			s.GMSBuilds++
		}
	}
	return s
}
