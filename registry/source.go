// Package registry fetches the official device list and normalizes its
// various source shapes into one canonical codename-keyed snapshot.
package registry

import (
	"fmt"
	"log/slog"

	axionbot "github.com/rmux/axion-bot"
)

// Snapshot is the normalized view of the device registry. Keys are
// lowercase codenames.
type Snapshot struct {
	Devices map[string]axionbot.DeviceInfo
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Devices: map[string]axionbot.DeviceInfo{}}
}

// Source parses one upstream registry shape into a canonical snapshot.
type Source interface {
	// Name identifies the source shape, e.g. "structured".
	Name() string

	// Parse converts raw registry bytes into a snapshot. A document that
	// does not match the expected shape returns an error and no snapshot.
	Parse(data []byte) (*Snapshot, error)
}

// SelectSource returns the Source implementation for a configured format
// name. Valid formats are "structured", "flat" and "markdown".
func SelectSource(format string, logger *slog.Logger) (Source, error) {
	switch format {
	case "structured":
		return NewStructuredSource(logger), nil
	case "flat":
		return NewFlatSource(), nil
	case "markdown":
		return NewMarkdownSource(), nil
	}
	return nil, fmt.Errorf("unknown devices format %q", format)
}
