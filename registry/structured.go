package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	axionbot "github.com/rmux/axion-bot"
)

// StructuredSource parses the structured-array registry shape:
//
//	{"devices": [{"codename": ..., "device_name": ..., "maintainer": ...}, ...]}
//
// Entries missing a codename or device name are skipped.
type StructuredSource struct {
	logger *slog.Logger
}

// NewStructuredSource creates a structured-array source.
func NewStructuredSource(logger *slog.Logger) *StructuredSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuredSource{logger: logger}
}

// Name implements Source.
func (s *StructuredSource) Name() string { return "structured" }

type structuredDocument struct {
	Devices []structuredEntry `json:"devices"`
}

type structuredEntry struct {
	Codename     string `json:"codename"`
	DeviceName   string `json:"device_name"`
	Maintainer   string `json:"maintainer"`
	SupportGroup string `json:"support_group"`
	ImageURL     string `json:"image_url"`
}

// Parse implements Source.
func (s *StructuredSource) Parse(data []byte) (*Snapshot, error) {
	// Probe the raw shape first so a present-but-wrong "devices" key is
	// distinguishable from an absent one.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding device registry: %w", err)
	}
	raw, ok := probe["devices"]
	if !ok {
		return nil, fmt.Errorf(`device registry missing "devices" array`)
	}

	var entries []structuredEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf(`device registry "devices" is not an array: %w`, err)
	}

	snap := NewSnapshot()
	for _, e := range entries {
		if e.Codename == "" || e.DeviceName == "" {
			s.logger.Warn("skipping invalid device entry",
				"codename", e.Codename,
				"device_name", e.DeviceName,
			)
			continue
		}
		codename := strings.ToLower(e.Codename)
		snap.Devices[codename] = axionbot.DeviceInfo{
			Codename:     codename,
			Name:         e.DeviceName,
			Maintainer:   e.Maintainer,
			SupportGroup: e.SupportGroup,
			ImageURL:     e.ImageURL,
		}
	}
	return snap, nil
}
