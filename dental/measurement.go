// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"encoding/json"
	"math"
	"time"
)

// Metadata keys written on measurements
const (
	KeyPresetID    = "dentalPresetId"
	KeyPresetLabel = "dentalPresetLabel"
	KeyUnit        = "dentalUnit"
	KeyValue       = "dentalValue"
	KeyTooth       = "dentalTooth"
	KeyCreatedAt   = "dentalCreatedAt"
)

// Measurement mirrors a measurement owned by the viewer's measurement service.
// Data holds the geometry and cached statistics computed by the toolset.
type Measurement struct {
	UID      string         `json:"uid" bson:"uid"`
	ToolName string         `json:"toolName" bson:"toolName"`
	Label    string         `json:"label" bson:"label"`
	Data     map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Metadata Metadata       `json:"metadata" bson:"metadata"`
}

// Metadata is the measurement metadata map. The dental keys are typed;
// everything else the host put there is carried through Extra untouched.
type Metadata struct {
	PresetID    string          `bson:"dentalPresetId,omitempty"`
	PresetLabel string          `bson:"dentalPresetLabel,omitempty"`
	Unit        string          `bson:"dentalUnit,omitempty"`
	Value       *float64        `bson:"dentalValue,omitempty"`
	Tooth       *ToothSelection `bson:"dentalTooth,omitempty"`
	CreatedAt   *time.Time      `bson:"dentalCreatedAt,omitempty"`
	Extra       map[string]any  `bson:"extra,omitempty"`
}

// HasDental reports whether the measurement was stamped with a preset
func (m Measurement) HasDental() bool {
	return m.Metadata.PresetID != ""
}

// Clone returns a deep copy of m; Data and Extra maps are copied recursively
func (m Measurement) Clone() Measurement {
	out := m
	out.Data = cloneMap(m.Data)
	out.Metadata = m.Metadata.clone()
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func (md Metadata) clone() Metadata {
	out := md
	out.Extra = cloneMap(md.Extra)
	if md.Value != nil {
		v := *md.Value
		out.Value = &v
	}
	if md.Tooth != nil {
		t := *md.Tooth
		out.Tooth = &t
	}
	if md.CreatedAt != nil {
		t := *md.CreatedAt
		out.CreatedAt = &t
	}
	return out
}

// Equal compares the dental keys. Extra is host-owned and never rewritten here.
func (md Metadata) Equal(o Metadata) bool {
	if md.PresetID != o.PresetID || md.PresetLabel != o.PresetLabel || md.Unit != o.Unit {
		return false
	}
	if (md.Value == nil) != (o.Value == nil) || (md.Value != nil && !sameFloat(*md.Value, *o.Value)) {
		return false
	}
	if (md.Tooth == nil) != (o.Tooth == nil) || (md.Tooth != nil && *md.Tooth != *o.Tooth) {
		return false
	}
	if (md.CreatedAt == nil) != (o.CreatedAt == nil) || (md.CreatedAt != nil && !md.CreatedAt.Equal(*o.CreatedAt)) {
		return false
	}
	return true
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// MarshalJSON flattens the dental keys into the host metadata map
func (md Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(md.Extra)+6)
	for k, v := range md.Extra {
		out[k] = v
	}
	if md.PresetID != "" {
		out[KeyPresetID] = md.PresetID
	}
	if md.PresetLabel != "" {
		out[KeyPresetLabel] = md.PresetLabel
	}
	if md.Unit != "" {
		out[KeyUnit] = md.Unit
	}
	if md.Value != nil {
		out[KeyValue] = *md.Value
	}
	if md.Tooth != nil {
		out[KeyTooth] = md.Tooth
	}
	if md.CreatedAt != nil {
		out[KeyCreatedAt] = md.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a host metadata map into dental keys and Extra
func (md *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*md = Metadata{}
	for k, v := range raw {
		var err error
		switch k {
		case KeyPresetID:
			err = json.Unmarshal(v, &md.PresetID)
		case KeyPresetLabel:
			err = json.Unmarshal(v, &md.PresetLabel)
		case KeyUnit:
			err = json.Unmarshal(v, &md.Unit)
		case KeyValue:
			err = json.Unmarshal(v, &md.Value)
		case KeyTooth:
			err = json.Unmarshal(v, &md.Tooth)
		case KeyCreatedAt:
			err = json.Unmarshal(v, &md.CreatedAt)
		default:
			var anyVal any
			if err = json.Unmarshal(v, &anyVal); err == nil {
				if md.Extra == nil {
					md.Extra = make(map[string]any)
				}
				md.Extra[k] = anyVal
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
