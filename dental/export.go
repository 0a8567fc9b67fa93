// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

// ExportRow is one measurement in the measurements panel export
type ExportRow struct {
	UID    string          `json:"uid"`
	Label  string          `json:"label"`
	Value  *float64        `json:"value"`
	Unit   string          `json:"unit"`
	Tooth  *ToothSelection `json:"tooth"`
	Source string          `json:"source"`
}

// Export converts measurements to export rows. Dental measurements report
// their preset label and id; others fall back to the tool's own reading.
func Export(ms []Measurement) []ExportRow {
	rows := make([]ExportRow, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, exportRow(m))
	}
	return rows
}

func exportRow(m Measurement) ExportRow {
	if m.HasDental() {
		md := m.Metadata.clone()
		label := md.PresetLabel
		if label == "" {
			label = m.Label
		}
		return ExportRow{
			UID:    m.UID,
			Label:  label,
			Value:  md.Value,
			Unit:   md.Unit,
			Tooth:  md.Tooth,
			Source: md.PresetID,
		}
	}

	row := ExportRow{UID: m.UID, Label: m.Label, Source: m.ToolName}
	switch m.ToolName {
	case ToolLength:
		row.Unit = "mm"
		if v, ok := readValue(m.Data, lengthKeys); ok {
			row.Value = &v
		}
	case ToolAngle:
		row.Unit = "°"
		if v, ok := readValue(m.Data, angleKeys); ok {
			row.Value = &v
		}
	}
	return row
}
