package registry

import (
	"fmt"
	"regexp"
	"strings"

	axionbot "github.com/rmux/axion-bot"
)

// MarkdownSource parses the long-form Markdown registry document. The
// document carries two independently located sections: a device table with
// rows of the form
//
//	| **Galaxy A71** | `a71` |
//
// and a maintainer list where each bullet has the form
//
//	- **[Name](https://...)** (Galaxy A71, Galaxy A72)
//
// A device's maintainer is resolved by best-effort matching of its display
// name or codename against each maintainer's listed device strings.
type MarkdownSource struct{}

// NewMarkdownSource creates a Markdown-table source.
func NewMarkdownSource() *MarkdownSource { return &MarkdownSource{} }

// Name implements Source.
func (s *MarkdownSource) Name() string { return "markdown" }

var (
	deviceHeaderRe     = regexp.MustCompile(`(?mi)^\|\s*Device\s*\|\s*Codename\s*\|`)
	deviceRowRe        = regexp.MustCompile(`(?m)^\|\s*\*\*(.+?)\*\*\s*\|\s*` + "`(.+?)`" + `\s*\|`)
	maintainerHeaderRe = regexp.MustCompile(`(?mi)^#+\s*.*maintainers?\b`)
	maintainerRowRe    = regexp.MustCompile(`(?m)^-\s*\*\*\[(.+?)\]\(.*?\)\*\*\s*\((.+?)\)`)
)

type maintainerEntry struct {
	name    string
	devices []string
}

// Parse implements Source.
func (s *MarkdownSource) Parse(data []byte) (*Snapshot, error) {
	doc := string(data)

	deviceSection := doc
	if loc := deviceHeaderRe.FindStringIndex(doc); loc != nil {
		deviceSection = doc[loc[0]:]
	}

	rows := deviceRowRe.FindAllStringSubmatch(deviceSection, -1)
	if len(rows) == 0 {
		return nil, fmt.Errorf("device table not found in markdown document")
	}

	maintainerSection := doc
	if loc := maintainerHeaderRe.FindStringIndex(doc); loc != nil {
		maintainerSection = doc[loc[0]:]
	}

	var maintainers []maintainerEntry
	for _, m := range maintainerRowRe.FindAllStringSubmatch(maintainerSection, -1) {
		entry := maintainerEntry{name: strings.TrimSpace(m[1])}
		for _, d := range strings.Split(m[2], ",") {
			if d = strings.TrimSpace(d); d != "" {
				entry.devices = append(entry.devices, d)
			}
		}
		maintainers = append(maintainers, entry)
	}

	snap := NewSnapshot()
	for _, row := range rows {
		name := strings.TrimSpace(row[1])
		codename := strings.ToLower(strings.TrimSpace(row[2]))
		if codename == "" || name == "" {
			continue
		}
		snap.Devices[codename] = axionbot.DeviceInfo{
			Codename:   codename,
			Name:       name,
			Maintainer: matchMaintainer(name, codename, maintainers),
		}
	}
	return snap, nil
}

// matchMaintainer resolves a device to the first maintainer whose listed
// device strings satisfy any matching rule. The cascade is intentionally
// lax; replace the rules here, not at call sites.
func matchMaintainer(name, codename string, maintainers []maintainerEntry) string {
	for _, m := range maintainers {
		for _, listed := range m.devices {
			if deviceStringMatches(listed, name) || deviceStringMatches(listed, codename) {
				return m.name
			}
		}
	}
	return ""
}

// deviceStringMatches applies the matching cascade between a maintainer's
// listed device string and a device name or codename: exact
// case-insensitive match, substring containment in either direction, then
// per-word substring on words longer than one character.
func deviceStringMatches(listed, target string) bool {
	l := strings.ToLower(strings.TrimSpace(listed))
	t := strings.ToLower(strings.TrimSpace(target))
	if l == "" || t == "" {
		return false
	}
	if l == t {
		return true
	}
	if strings.Contains(l, t) || strings.Contains(t, l) {
		return true
	}
	for _, word := range strings.Fields(t) {
		if len(word) > 1 && strings.Contains(l, word) {
			return true
		}
	}
	return false
}
