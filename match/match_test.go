package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/registry"
)

type fakeCache struct {
	snap     *registry.Snapshot
	builds   map[string]*axionbot.BuildInfo
	inserted []axionbot.DeviceInfo
}

func newFakeCache(codenames ...string) *fakeCache {
	snap := registry.NewSnapshot()
	for _, c := range codenames {
		snap.Devices[c] = axionbot.DeviceInfo{Codename: c, Name: "Device " + c}
	}
	return &fakeCache{snap: snap, builds: map[string]*axionbot.BuildInfo{}}
}

func (f *fakeCache) Devices(ctx context.Context, force bool) *registry.Snapshot {
	return f.snap
}

func (f *fakeCache) Build(ctx context.Context, codename string, variant axionbot.Variant, force bool) *axionbot.BuildInfo {
	return f.builds[codename+"_"+string(variant)]
}

func (f *fakeCache) InsertDevice(codename string, info axionbot.DeviceInfo) {
	f.inserted = append(f.inserted, info)
	f.snap.Devices[codename] = info
}

func TestResolveExact(t *testing.T) {
	dc := newFakeCache("a71", "pipa")

	res := Resolve(context.Background(), dc, "a71")
	require.True(t, res.Found)
	require.Equal(t, "a71", res.Codename)
	require.Equal(t, "Device a71", res.Device.Name)
}

func TestResolveCaseInsensitive(t *testing.T) {
	dc := newFakeCache("a71")

	res := Resolve(context.Background(), dc, "A71")
	require.True(t, res.Found)
	require.Equal(t, "a71", res.Codename)
}

func TestResolveTrimsWhitespace(t *testing.T) {
	dc := newFakeCache("a71")

	res := Resolve(context.Background(), dc, "  a71  ")
	require.True(t, res.Found)
	require.Equal(t, "a71", res.Codename)
}

func TestResolveUnlistedWithBuilds(t *testing.T) {
	dc := newFakeCache("a71")
	dc.builds["ghost_GMS"] = &axionbot.BuildInfo{Codename: "ghost", Variant: axionbot.VariantGMS}

	res := Resolve(context.Background(), dc, "Ghost")
	require.True(t, res.Found)
	require.Equal(t, "ghost", res.Codename)
	require.Equal(t, "Ghost", res.Device.Name)

	// A synthetic entry lands in the cache so later renders have a name.
	require.Len(t, dc.inserted, 1)
	require.Equal(t, "ghost", dc.inserted[0].Codename)
}

func TestResolveSuggestions(t *testing.T) {
	dc := newFakeCache("pipa", "pipb", "pipc", "pipd", "a71")

	res := Resolve(context.Background(), dc, "pip")
	require.False(t, res.Found)
	require.Len(t, res.Suggestions, MaxSuggestions)

	// Suggestions come back in sorted codename order.
	require.Equal(t, "pipa", res.Suggestions[0].Codename)
	require.Equal(t, "pipb", res.Suggestions[1].Codename)
	require.Equal(t, "pipc", res.Suggestions[2].Codename)
}

func TestResolveSuggestionsReverseContainment(t *testing.T) {
	dc := newFakeCache("a71")

	// Input containing a codename still suggests it.
	res := Resolve(context.Background(), dc, "a715g")
	require.False(t, res.Found)
	require.Len(t, res.Suggestions, 1)
	require.Equal(t, "a71", res.Suggestions[0].Codename)
}

func TestResolveNoMatch(t *testing.T) {
	dc := newFakeCache("a71")

	res := Resolve(context.Background(), dc, "nothinglikeit")
	require.False(t, res.Found)
	require.Empty(t, res.Suggestions)
	require.Empty(t, dc.inserted)
}
