// Package match resolves free-text codename input against the device
// registry, with a direct build probe for unlisted devices and containment
// suggestions when nothing resolves.
package match

import (
	"context"
	"sort"
	"strings"
	"unicode"

	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/registry"
)

// DeviceCache is the slice of the cache the matcher needs.
type DeviceCache interface {
	Devices(ctx context.Context, force bool) *registry.Snapshot
	Build(ctx context.Context, codename string, variant axionbot.Variant, force bool) *axionbot.BuildInfo
	InsertDevice(codename string, info axionbot.DeviceInfo)
}

// MaxSuggestions caps the not-found suggestion list.
const MaxSuggestions = 3

// Result is the outcome of a codename resolution.
type Result struct {
	// Found reports whether a canonical codename was resolved.
	Found bool

	// Codename is the canonical lowercase codename when Found.
	Codename string

	// Device is the registry entry for Codename when Found.
	Device axionbot.DeviceInfo

	// Suggestions lists up to MaxSuggestions similar devices when not
	// Found, in sorted codename order.
	Suggestions []axionbot.DeviceInfo
}

// Resolve maps user input to a canonical codename. The steps short-circuit
// in order: exact key match, case-insensitive key match, a direct build
// probe for codenames that publish builds without being listed (which
// inserts a synthetic entry so rendering has a display name), and finally
// substring suggestions.
func Resolve(ctx context.Context, dc DeviceCache, input string) Result {
	input = strings.TrimSpace(input)
	lower := strings.ToLower(input)
	snap := dc.Devices(ctx, false)

	if d, ok := snap.Devices[input]; ok {
		return Result{Found: true, Codename: input, Device: d}
	}

	for codename, d := range snap.Devices {
		if strings.EqualFold(codename, input) {
			return Result{Found: true, Codename: codename, Device: d}
		}
	}

	// The registry can lag behind the OTA feed: a device with published
	// builds may not be listed yet. Probe the feed directly.
	if dc.Build(ctx, lower, axionbot.VariantVanilla, false) != nil ||
		dc.Build(ctx, lower, axionbot.VariantGMS, false) != nil {
		info := axionbot.DeviceInfo{
			Codename: lower,
			Name:     capitalizeFirst(lower),
		}
		dc.InsertDevice(lower, info)
		return Result{Found: true, Codename: lower, Device: info}
	}

	return Result{Suggestions: suggest(snap, lower)}
}

// suggest returns devices whose codename contains the input or is
// contained by it, capped at MaxSuggestions, in sorted codename order.
func suggest(snap *registry.Snapshot, input string) []axionbot.DeviceInfo {
	if input == "" {
		return nil
	}
	codenames := make([]string, 0, len(snap.Devices))
	for codename := range snap.Devices {
		codenames = append(codenames, codename)
	}
	sort.Strings(codenames)

	var out []axionbot.DeviceInfo
	for _, codename := range codenames {
		if strings.Contains(codename, input) || strings.Contains(input, codename) {
			out = append(out, snap.Devices[codename])
			if len(out) == MaxSuggestions {
				break
			}
		}
	}
	return out
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
