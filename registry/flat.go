package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	axionbot "github.com/rmux/axion-bot"
)

// FlatSource parses the flat-map registry shape:
//
//	{"a71": {"device_name": "Galaxy A71", "maintainer": ..., "support_group": ...}, ...}
type FlatSource struct{}

// NewFlatSource creates a flat-map source.
func NewFlatSource() *FlatSource { return &FlatSource{} }

// Name implements Source.
func (s *FlatSource) Name() string { return "flat" }

type flatEntry struct {
	DeviceName   string `json:"device_name"`
	Maintainer   string `json:"maintainer"`
	SupportGroup string `json:"support_group"`
}

// Parse implements Source.
func (s *FlatSource) Parse(data []byte) (*Snapshot, error) {
	var entries map[string]flatEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding device registry: %w", err)
	}

	snap := NewSnapshot()
	for codename, e := range entries {
		codename = strings.ToLower(codename)
		snap.Devices[codename] = axionbot.DeviceInfo{
			Codename:     codename,
			Name:         e.DeviceName,
			Maintainer:   e.Maintainer,
			SupportGroup: e.SupportGroup,
		}
	}
	return snap, nil
}
