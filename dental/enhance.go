// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var toothPattern = regexp.MustCompile(`(?i)\((FDI|Universal)\s+([0-9]{1,2}|[A-T])\)`)

// label fragments that identify a preset when its exact label is absent
var presetAliases = []struct {
	fragment string
	presetID string
}{
	{"periapical", PresetPeriapicalLength},
	{"canal", PresetCanalAngle},
	{"crown", PresetCrownWidth},
	{"root", PresetRootLength},
}

// InferFromLabel guesses the preset and tooth from a display label.
// This is best-effort string matching and can be wrong for hand-edited labels.
func InferFromLabel(label string) (Preset, *ToothSelection, bool) {
	lower := strings.ToLower(label)

	var (
		preset Preset
		found  bool
	)
	for _, p := range presets {
		if strings.Contains(lower, strings.ToLower(p.Label)) {
			preset, found = p, true
			break
		}
	}
	if !found {
		for _, a := range presetAliases {
			if strings.Contains(lower, a.fragment) {
				preset, found = PresetByID(a.presetID)
				break
			}
		}
	}
	if !found {
		return Preset{}, nil, false
	}

	var tooth *ToothSelection
	if match := toothPattern.FindStringSubmatch(label); match != nil {
		system, err := ParseSystem(match[1])
		if err == nil {
			t := ToothSelection{System: system, Value: strings.ToUpper(match[2])}
			if t.Validate() == nil {
				tooth = &t
			}
		}
	}
	return preset, tooth, true
}

// EnhanceExisting tags measurements that predate the enricher by parsing
// their labels. Measurements that already carry dental metadata are left
// alone. Returns the number of measurements updated.
func (e *Enricher) EnhanceExisting() int {
	if e.store == nil {
		return 0
	}

	updated := 0
	for _, m := range e.store.Measurements() {
		if m.HasDental() {
			continue
		}
		p, tooth, ok := InferFromLabel(m.Label)
		if !ok {
			continue
		}
		out, changed := stamp(m, p, tooth, e.now())
		if !changed {
			continue
		}
		if err := e.store.Update(out); err != nil {
			e.logger.Warn("measurement update failed", zap.String("uid", m.UID), zap.Error(err))
			continue
		}
		updated++
	}

	if updated > 0 {
		e.logger.Info("existing measurements enhanced", zap.Int("count", updated))
	}
	return updated
}
