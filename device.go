// Package axionbot holds the canonical device and build model shared by the
// registry, OTA and presentation layers. All codename keys are lowercase.
package axionbot

import "strings"

// Variant is a build flavor published by the OTA feed.
type Variant string

const (
	// VariantVanilla is the AOSP-like build without bundled Google apps.
	VariantVanilla Variant = "VANILLA"

	// VariantGMS is the build with Google Mobile Services bundled.
	VariantGMS Variant = "GMS"
)

// Variants returns all known build variants in display order.
func Variants() []Variant {
	return []Variant{VariantVanilla, VariantGMS}
}

// ParseVariant resolves a case-insensitive variant name.
func ParseVariant(s string) (Variant, bool) {
	switch strings.ToUpper(s) {
	case string(VariantVanilla):
		return VariantVanilla, true
	case string(VariantGMS):
		return VariantGMS, true
	}
	return "", false
}

// Valid reports whether the variant is one of the known flavors.
func (v Variant) Valid() bool {
	return v == VariantVanilla || v == VariantGMS
}

// Title returns the variant name as shown on keyboard buttons.
func (v Variant) Title() string {
	if v == VariantVanilla {
		return "Vanilla"
	}
	return string(v)
}

// CallbackName returns the variant as used in callback payloads.
func (v Variant) CallbackName() string {
	return strings.ToLower(string(v))
}

// DeviceInfo is the canonical registry entry for one device.
// Optional fields are empty when the source does not carry them.
type DeviceInfo struct {
	Codename     string `json:"codename"`
	Name         string `json:"name"`
	Maintainer   string `json:"maintainer,omitempty"`
	SupportGroup string `json:"support_group,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// BuildInfo describes the latest published build for a (codename, variant)
// pair. Size and Date are pre-formatted for display.
type BuildInfo struct {
	Codename string  `json:"codename"`
	Variant  Variant `json:"variant"`
	Version  string  `json:"version"`
	Filename string  `json:"filename"`
	Size     string  `json:"size"`
	Date     string  `json:"date"`
	URL      string  `json:"url"`
	MD5      string  `json:"md5,omitempty"`
}
