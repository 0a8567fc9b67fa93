// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

// Tool names as registered by the rendering toolset
const (
	ToolLength = "Length"
	ToolAngle  = "Angle"
)

// Preset ids
const (
	PresetPeriapicalLength = "periapical-length"
	PresetCanalAngle       = "canal-angle"
	PresetCrownWidth       = "crown-width"
	PresetRootLength       = "root-length"
)

// Preset is a named measurement shortcut bound to one toolset tool.
type Preset struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	ToolName    string `json:"toolName"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// IsAngle reports whether the preset measures an angle rather than a distance
func (p Preset) IsAngle() bool {
	return p.ToolName == ToolAngle
}

var presets = []Preset{
	{
		ID:          PresetPeriapicalLength,
		Label:       "PA length",
		ToolName:    ToolLength,
		Unit:        "mm",
		Description: "Periapical length from cusp tip to radiographic apex",
	},
	{
		ID:          PresetCanalAngle,
		Label:       "Canal angle",
		ToolName:    ToolAngle,
		Unit:        "°",
		Description: "Root canal curvature angle",
	},
	{
		ID:          PresetCrownWidth,
		Label:       "Crown width",
		ToolName:    ToolLength,
		Unit:        "mm",
		Description: "Mesiodistal crown width at the contact points",
	},
	{
		ID:          PresetRootLength,
		Label:       "Root length",
		ToolName:    ToolLength,
		Unit:        "mm",
		Description: "Root length from cementoenamel junction to apex",
	},
}

// Presets returns a copy of the preset table in display order
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByID looks up a preset. Unknown ids return false.
func PresetByID(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}
