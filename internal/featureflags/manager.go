// Package featureflags evaluates the FEATURE_FLAGS switches that gate optional
// surfaces of the API.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Known flags.
const (
	// ImageStaging gates POST /api/images.
	ImageStaging = "image_staging"
	// LiveFeed gates the /api/ws feed stream.
	LiveFeed = "live_feed"
)

// defaults apply when a known flag is absent from the configuration.
var defaults = map[string]bool{
	ImageStaging: true,
	LiveFeed:     true,
}

type rule struct {
	raw     string
	on      bool
	percent int // -1 unless the rule is a rollout
}

// Manager evaluates flags defined as a comma-separated key=value list, e.g.
// "image_staging=on,live_feed=25%".
type Manager struct {
	rules map[string]rule
}

func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key, value = normalize(key), normalize(value)
		if !ok || key == "" || value == "" {
			continue
		}
		r, ok := parseRule(value)
		if !ok {
			continue
		}
		rules[key] = r
	}
	return &Manager{rules: rules}
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, on: true, percent: -1}, true
	case "off", "false", "0":
		return rule{raw: value, percent: -1}, true
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if !strings.HasSuffix(value, "%") || err != nil {
		return rule{}, false
	}
	return rule{raw: value, percent: min(max(pct, 0), 100)}, true
}

// Enabled reports whether name is on for userID. Percentage rollouts bucket
// users deterministically; anonymous callers (userID 0) only see full rollouts.
func (m *Manager) Enabled(name string, userID uint) bool {
	name = normalize(name)
	if m == nil {
		return defaults[name]
	}
	r, ok := m.rules[name]
	if !ok {
		return defaults[name]
	}
	switch {
	case r.percent < 0:
		return r.on
	case r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == 0:
		return false
	default:
		return rolloutBucket(name, userID) < r.percent
	}
}

// Raw returns the configured values by flag name.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Snapshot evaluates every configured and known flag for userID.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(defaults))
	for name := range defaults {
		out[name] = m.Enabled(name, userID)
	}
	if m != nil {
		for name := range m.rules {
			out[name] = m.Enabled(name, userID)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", name, userID)
	return int(h.Sum32() % 100)
}
