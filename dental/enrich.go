// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Data keys tried in order when reading a measured value
var (
	lengthKeys = []string{"length", "distance", "value"}
	angleKeys  = []string{"angle", "cobbAngle", "value"}
)

// FormatLabel renders "<preset label> (<system> <value>)", or just the
// preset label when no tooth is attached.
func FormatLabel(p Preset, tooth *ToothSelection) string {
	if tooth == nil || tooth.Value == "" {
		return p.Label
	}
	return p.Label + " (" + tooth.String() + ")"
}

// MeasuredValue reads the preset's value out of toolset data. Top-level keys
// win over the per-target cachedStats maps, which are scanned in key order.
func MeasuredValue(p Preset, data map[string]any) (float64, bool) {
	keys := lengthKeys
	if p.IsAngle() {
		keys = angleKeys
	}
	return readValue(data, keys)
}

func readValue(data map[string]any, keys []string) (float64, bool) {
	if data == nil {
		return 0, false
	}
	for _, k := range keys {
		if v, ok := toFloat(data[k]); ok {
			return v, true
		}
	}

	stats, ok := data["cachedStats"].(map[string]any)
	if !ok {
		return 0, false
	}
	targets := make([]string, 0, len(stats))
	for t := range stats {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, k := range keys {
		for _, t := range targets {
			target, ok := stats[t].(map[string]any)
			if !ok {
				continue
			}
			if v, ok := toFloat(target[k]); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// toFloat accepts finite numbers only; NaN from a degenerate tool reads as no value
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// EnrichAdded is the pure form of the measurement-added handler.
// With an active known preset the measurement is stamped with it; otherwise a
// measurement that already carries dental metadata is re-stamped from its own
// preset id. changed is false when the result equals the input.
func EnrichAdded(m Measurement, st State, now time.Time) (Measurement, bool) {
	if p, ok := PresetByID(st.PresetID); ok {
		return stamp(m, p, st.Tooth, now)
	}
	return EnrichUpdated(m, now)
}

// EnrichUpdated re-stamps a measurement that already carries dental metadata
func EnrichUpdated(m Measurement, now time.Time) (Measurement, bool) {
	if !m.HasDental() {
		return m, false
	}
	p, ok := PresetByID(m.Metadata.PresetID)
	if !ok {
		return m, false
	}
	return stamp(m, p, nil, now)
}

// stamp writes preset metadata and the derived label. tooth is only used
// when the measurement has none; the creation time is set once.
func stamp(m Measurement, p Preset, tooth *ToothSelection, now time.Time) (Measurement, bool) {
	out := m.Clone()
	md := &out.Metadata
	md.PresetID = p.ID
	md.PresetLabel = p.Label
	md.Unit = p.Unit
	if v, ok := MeasuredValue(p, m.Data); ok {
		md.Value = &v
	}
	if md.Tooth == nil && tooth != nil {
		t := *tooth
		md.Tooth = &t
	}
	if md.CreatedAt == nil {
		t := now.UTC()
		md.CreatedAt = &t
	}
	out.Label = FormatLabel(p, md.Tooth)

	changed := out.Label != m.Label || !out.Metadata.Equal(m.Metadata)
	if !changed {
		return m, false
	}
	return out, true
}
