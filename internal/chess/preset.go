package chess

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AnalysisPreset is a named engine budget: how many lines to request and how
// long the engine may think per request.
type AnalysisPreset struct {
	Name           string
	Lines          int
	MoveTimeMillis int
}

const (
	DefaultPresetName = "standard"
	maxPresetLines    = 10
)

var DefaultPresets = map[string]AnalysisPreset{
	"quick": {
		Name:           "quick",
		Lines:          3,
		MoveTimeMillis: 300,
	},
	"standard": {
		Name:           "standard",
		Lines:          3,
		MoveTimeMillis: 1000,
	},
	"deep": {
		Name:           "deep",
		Lines:          5,
		MoveTimeMillis: 3000,
	},
}

// Budget returns the per-request thinking time.
func (p AnalysisPreset) Budget() time.Duration {
	return time.Duration(p.MoveTimeMillis) * time.Millisecond
}

func GetPreset(name string) (AnalysisPreset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "":
		key = DefaultPresetName
	case "fast":
		key = "quick"
	case "thorough":
		key = "deep"
	}
	if p, ok := DefaultPresets[key]; ok {
		return p, nil
	}
	return AnalysisPreset{}, fmt.Errorf("unknown analysis preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
}

// PresetNames lists the known presets in name order.
func PresetNames() []string {
	out := make([]string, 0, len(DefaultPresets))
	for name := range DefaultPresets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WithOverrides applies non-zero line and time overrides.
func (p AnalysisPreset) WithOverrides(lines, moveTimeMillis int) (AnalysisPreset, error) {
	if lines > 0 {
		p.Lines = lines
	}
	if moveTimeMillis > 0 {
		p.MoveTimeMillis = moveTimeMillis
	}
	if err := ValidatePreset(p); err != nil {
		return AnalysisPreset{}, err
	}
	return p, nil
}

func ValidatePreset(p AnalysisPreset) error {
	switch {
	case p.Lines <= 0:
		return fmt.Errorf("lines must be > 0: %d", p.Lines)
	case p.Lines > maxPresetLines:
		return fmt.Errorf("lines (%d) must not exceed %d", p.Lines, maxPresetLines)
	case p.MoveTimeMillis <= 0:
		return fmt.Errorf("move time must be > 0: %d", p.MoveTimeMillis)
	}
	return nil
}
