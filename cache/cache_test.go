package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/ota"
	"github.com/rmux/axion-bot/registry"
)

type fakeRegistry struct {
	mu      sync.Mutex
	calls   int
	snap    *registry.Snapshot
	err     error
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *fakeRegistry) Fetch(ctx context.Context) (*registry.Snapshot, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeRegistry) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBuilds struct {
	mu     sync.Mutex
	calls  int
	builds map[string]*axionbot.BuildInfo
	err    error
}

func (f *fakeBuilds) FetchBuild(ctx context.Context, codename string, variant axionbot.Variant) (*axionbot.BuildInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.builds[codename+"_"+string(variant)]; ok {
		return b, nil
	}
	return nil, ota.ErrNotFound
}

func (f *fakeBuilds) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snapshotWith(codenames ...string) *registry.Snapshot {
	snap := registry.NewSnapshot()
	for _, c := range codenames {
		snap.Devices[c] = axionbot.DeviceInfo{Codename: c, Name: "Device " + c}
	}
	return snap
}

func TestDevicesCachesWithinTTL(t *testing.T) {
	reg := &fakeRegistry{snap: snapshotWith("a71")}
	c := New(reg, &fakeBuilds{})

	first := c.Devices(context.Background(), false)
	require.Len(t, first.Devices, 1)
	require.Equal(t, 1, reg.callCount())

	second := c.Devices(context.Background(), false)
	require.Same(t, first, second)
	require.Equal(t, 1, reg.callCount())
}

func TestDevicesRefreshAfterTTL(t *testing.T) {
	now := time.Now()
	reg := &fakeRegistry{snap: snapshotWith("a71")}
	c := New(reg, &fakeBuilds{},
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	c.Devices(context.Background(), false)
	require.Equal(t, 1, reg.callCount())

	now = now.Add(59 * time.Second)
	c.Devices(context.Background(), false)
	require.Equal(t, 1, reg.callCount())

	now = now.Add(2 * time.Second)
	c.Devices(context.Background(), false)
	require.Equal(t, 2, reg.callCount())
}

func TestDevicesForceBypassesCache(t *testing.T) {
	reg := &fakeRegistry{snap: snapshotWith("a71")}
	c := New(reg, &fakeBuilds{})

	c.Devices(context.Background(), false)
	c.Devices(context.Background(), true)
	require.Equal(t, 2, reg.callCount())
}

func TestDevicesFailureLeavesStateUntouched(t *testing.T) {
	now := time.Now()
	reg := &fakeRegistry{snap: snapshotWith("a71")}
	c := New(reg, &fakeBuilds{},
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	c.Devices(context.Background(), false)

	now = now.Add(2 * time.Minute)
	reg.err = fmt.Errorf("upstream down")

	// The caller gets an empty snapshot, never a nil or an error.
	snap := c.Devices(context.Background(), false)
	require.NotNil(t, snap)
	require.Empty(t, snap.Devices)

	// Once upstream recovers the next miss refreshes normally.
	reg.err = nil
	reg.snap = snapshotWith("a71", "pipa")
	snap = c.Devices(context.Background(), false)
	require.Len(t, snap.Devices, 2)
}

func TestDevicesSingleflight(t *testing.T) {
	reg := &fakeRegistry{
		snap:    snapshotWith("a71"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(reg, &fakeBuilds{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Devices(context.Background(), false)
		}()
	}

	<-reg.started
	time.Sleep(50 * time.Millisecond)
	close(reg.release)
	wg.Wait()

	require.Equal(t, 1, reg.callCount())
}

func TestBuildCachesPerKey(t *testing.T) {
	builds := &fakeBuilds{builds: map[string]*axionbot.BuildInfo{
		"a71_VANILLA": {Codename: "a71", Variant: axionbot.VariantVanilla, Version: "1.2"},
		"a71_GMS":     {Codename: "a71", Variant: axionbot.VariantGMS, Version: "1.2"},
	}}
	c := New(&fakeRegistry{snap: snapshotWith("a71")}, builds)

	vanilla := c.Build(context.Background(), "a71", axionbot.VariantVanilla, false)
	require.NotNil(t, vanilla)
	require.Equal(t, 1, builds.callCount())

	// Same key hits the cache; the other variant is an independent key.
	require.NotNil(t, c.Build(context.Background(), "a71", axionbot.VariantVanilla, false))
	require.Equal(t, 1, builds.callCount())

	require.NotNil(t, c.Build(context.Background(), "a71", axionbot.VariantGMS, false))
	require.Equal(t, 2, builds.callCount())
}

func TestBuildNotFoundIsNotCached(t *testing.T) {
	builds := &fakeBuilds{}
	c := New(&fakeRegistry{snap: snapshotWith("a71")}, builds)

	require.Nil(t, c.Build(context.Background(), "ghost", axionbot.VariantVanilla, false))
	require.Nil(t, c.Build(context.Background(), "ghost", axionbot.VariantVanilla, false))
	require.Equal(t, 2, builds.callCount())
}

func TestInsertDeviceReplacesSnapshot(t *testing.T) {
	reg := &fakeRegistry{snap: snapshotWith("a71")}
	c := New(reg, &fakeBuilds{})

	before := c.Devices(context.Background(), false)
	c.InsertDevice("PIPA", axionbot.DeviceInfo{Codename: "pipa", Name: "Pipa"})

	// The previously returned snapshot is never mutated.
	require.Len(t, before.Devices, 1)

	after := c.Devices(context.Background(), false)
	require.Len(t, after.Devices, 2)
	require.Equal(t, "Pipa", after.Devices["pipa"].Name)
}

func TestInsertDeviceDuringOutageDoesNotMarkFresh(t *testing.T) {
	reg := &fakeRegistry{err: fmt.Errorf("upstream down")}
	c := New(reg, &fakeBuilds{})

	require.Empty(t, c.Devices(context.Background(), false).Devices)
	c.InsertDevice("ghost", axionbot.DeviceInfo{Codename: "ghost", Name: "Ghost"})
	require.True(t, c.Stats().LastRefresh.IsZero())

	// The synthetic entry must not satisfy the next read; recovery
	// refetches and replaces it with the real registry.
	reg.err = nil
	reg.snap = snapshotWith("a71")
	snap := c.Devices(context.Background(), false)
	require.Equal(t, 2, reg.callCount())
	require.Len(t, snap.Devices, 1)
	require.Contains(t, snap.Devices, "a71")
	require.NotContains(t, snap.Devices, "ghost")
}

func TestClear(t *testing.T) {
	builds := &fakeBuilds{builds: map[string]*axionbot.BuildInfo{
		"a71_VANILLA": {Codename: "a71", Variant: axionbot.VariantVanilla},
	}}
	reg := &fakeRegistry{snap: snapshotWith("a71")}
	c := New(reg, builds)

	c.Devices(context.Background(), false)
	c.Build(context.Background(), "a71", axionbot.VariantVanilla, false)

	c.Clear()

	stats := c.Stats()
	require.Zero(t, stats.Devices)
	require.Zero(t, stats.VanillaBuilds)
	require.True(t, stats.LastRefresh.IsZero())

	c.Devices(context.Background(), false)
	require.Equal(t, 2, reg.callCount())
}

func TestStats(t *testing.T) {
	snap := registry.NewSnapshot()
	snap.Devices["a71"] = axionbot.DeviceInfo{Codename: "a71", Name: "Galaxy A71", Maintainer: "Alice", SupportGroup: "https://t.me/a71"}
	snap.Devices["pipa"] = axionbot.DeviceInfo{Codename: "pipa", Name: "Xiaomi Pad 6"}

	builds := &fakeBuilds{builds: map[string]*axionbot.BuildInfo{
		"a71_VANILLA":  {Codename: "a71", Variant: axionbot.VariantVanilla},
		"a71_GMS":      {Codename: "a71", Variant: axionbot.VariantGMS},
		"pipa_VANILLA": {Codename: "pipa", Variant: axionbot.VariantVanilla},
	}}
	c := New(&fakeRegistry{snap: snap}, builds)

	c.Devices(context.Background(), false)
	c.Build(context.Background(), "a71", axionbot.VariantVanilla, false)
	c.Build(context.Background(), "a71", axionbot.VariantGMS, false)
	c.Build(context.Background(), "pipa", axionbot.VariantVanilla, false)

	stats := c.Stats()
	require.Equal(t, 2, stats.Devices)
	require.Equal(t, 1, stats.Maintainers)
	require.Equal(t, 1, stats.SupportGroups)
	require.Equal(t, 2, stats.VanillaBuilds)
	require.Equal(t, 1, stats.GMSBuilds)
	require.False(t, stats.LastRefresh.IsZero())
}
