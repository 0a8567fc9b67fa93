// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

type activation struct {
	group string
	tool  string
}

type fakeTools struct {
	calls []activation
	fail  bool
}

func (f *fakeTools) SetActiveTool(group, tool string) error {
	f.calls = append(f.calls, activation{group, tool})
	if f.fail {
		return errors.New("tool group missing")
	}
	return nil
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnricher(t *testing.T) (*Enricher, *MemoryStore, *fakeTools) {
	t.Helper()
	store := NewMemoryStore()
	tools := &fakeTools{}
	e := NewEnricher(store, tools, NewSession(), nil)
	e.SetClock(func() time.Time { return fixedNow })
	e.Start()
	t.Cleanup(e.Teardown)
	return e, store, tools
}

func lengthMeasurement(uid string, length float64) Measurement {
	return Measurement{
		UID:      uid,
		ToolName: ToolLength,
		Label:    "",
		Data:     map[string]any{"length": length},
	}
}

func TestSelectPresetActivatesTool(t *testing.T) {
	e, _, tools := newTestEnricher(t)

	e.SelectPreset(PresetCanalAngle)

	if e.ActivePreset() != PresetCanalAngle {
		t.Errorf("Expected active preset %s, got %s", PresetCanalAngle, e.ActivePreset())
	}
	if len(tools.calls) != len(ToolGroups) {
		t.Fatalf("Expected %d activations, got %d", len(ToolGroups), len(tools.calls))
	}
	for i, call := range tools.calls {
		if call.group != ToolGroups[i] || call.tool != ToolAngle {
			t.Errorf("Activation %d = %+v", i, call)
		}
	}
}

func TestSelectUnknownPreset(t *testing.T) {
	e, _, tools := newTestEnricher(t)

	e.SelectPreset("no-such-preset")

	if e.ActivePreset() != "no-such-preset" {
		t.Errorf("Expected unknown id to be stored, got %q", e.ActivePreset())
	}
	if len(tools.calls) != 0 {
		t.Errorf("Expected no tool activation, got %d calls", len(tools.calls))
	}
}

func TestSelectPresetToleratesActivationErrors(t *testing.T) {
	e, _, tools := newTestEnricher(t)
	tools.fail = true

	e.SelectPreset(PresetRootLength)

	if len(tools.calls) != len(ToolGroups) {
		t.Errorf("Expected activation attempts on every group, got %d", len(tools.calls))
	}
}

func TestSelectPresetWithoutServices(t *testing.T) {
	e := NewEnricher(nil, nil, nil, nil)
	e.Start()
	e.SelectPreset(PresetCrownWidth)
	if e.ActivePreset() != PresetCrownWidth {
		t.Error("Expected preset to be stored without services")
	}
	if n := e.EnhanceExisting(); n != 0 {
		t.Errorf("Expected no enhancement without a store, got %d", n)
	}
	if rows := e.Export(); len(rows) != 0 {
		t.Errorf("Expected empty export without a store, got %d rows", len(rows))
	}
	e.Teardown()
}

func TestAddedMeasurementIsLabeled(t *testing.T) {
	e, store, _ := newTestEnricher(t)
	e.SetActiveTooth(&ToothSelection{System: SystemFDI, Value: "11"})
	e.SelectPreset(PresetPeriapicalLength)

	if err := store.Add(lengthMeasurement("m1", 15.5)); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get("m1")
	if got.Label != "PA length (FDI 11)" {
		t.Errorf("Expected label 'PA length (FDI 11)', got %q", got.Label)
	}
	md := got.Metadata
	if md.PresetID != PresetPeriapicalLength {
		t.Errorf("Expected dentalPresetId %s, got %s", PresetPeriapicalLength, md.PresetID)
	}
	if md.Unit != "mm" || md.PresetLabel != "PA length" {
		t.Errorf("Unexpected unit/label: %s / %s", md.Unit, md.PresetLabel)
	}
	if md.Value == nil || *md.Value != 15.5 {
		t.Errorf("Expected value 15.5, got %v", md.Value)
	}
	if md.Tooth == nil || *md.Tooth != (ToothSelection{SystemFDI, "11"}) {
		t.Errorf("Expected tooth FDI 11, got %v", md.Tooth)
	}
	if md.CreatedAt == nil || !md.CreatedAt.Equal(fixedNow) {
		t.Errorf("Expected creation time %v, got %v", fixedNow, md.CreatedAt)
	}
	if store.UpdateCount() != 1 {
		t.Errorf("Expected exactly one update, got %d", store.UpdateCount())
	}
}

func TestAddedMeasurementWithoutTooth(t *testing.T) {
	e, store, _ := newTestEnricher(t)
	e.SelectPreset(PresetCrownWidth)

	store.Add(lengthMeasurement("m1", 9.1))

	got, _ := store.Get("m1")
	if got.Label != "Crown width" {
		t.Errorf("Expected bare preset label, got %q", got.Label)
	}
	if got.Metadata.Tooth != nil {
		t.Errorf("Expected no tooth, got %v", got.Metadata.Tooth)
	}
}

func TestAddedMeasurementKeepsExistingTooth(t *testing.T) {
	e, store, _ := newTestEnricher(t)
	e.SelectPreset(PresetRootLength)
	e.SetActiveTooth(&ToothSelection{System: SystemFDI, Value: "36"})

	m := lengthMeasurement("m1", 12)
	m.Metadata.Tooth = &ToothSelection{System: SystemUniversal, Value: "3"}
	store.Add(m)

	got, _ := store.Get("m1")
	if got.Label != "Root length (Universal 3)" {
		t.Errorf("Expected existing tooth to win, got %q", got.Label)
	}
}

func TestAddedMeasurementWithoutPreset(t *testing.T) {
	_, store, _ := newTestEnricher(t)

	store.Add(lengthMeasurement("m1", 10))

	got, _ := store.Get("m1")
	if got.HasDental() || got.Label != "" {
		t.Errorf("Expected untouched measurement, got %+v", got)
	}
	if store.UpdateCount() != 0 {
		t.Errorf("Expected no updates, got %d", store.UpdateCount())
	}
}

func TestAddedMeasurementFromPreviousSession(t *testing.T) {
	_, store, _ := newTestEnricher(t)

	created := fixedNow.Add(-24 * time.Hour)
	m := Measurement{
		UID:      "restored",
		ToolName: ToolAngle,
		Label:    "stale label",
		Data:     map[string]any{"cachedStats": map[string]any{"imageId:1": map[string]any{"angle": 23.0}}},
		Metadata: Metadata{
			PresetID:  PresetCanalAngle,
			Tooth:     &ToothSelection{System: SystemUniversal, Value: "14"},
			CreatedAt: &created,
		},
	}
	store.Add(m)

	got, _ := store.Get("restored")
	if got.Label != "Canal angle (Universal 14)" {
		t.Errorf("Expected re-stamped label, got %q", got.Label)
	}
	if got.Metadata.Value == nil || *got.Metadata.Value != 23 {
		t.Errorf("Expected value read from cachedStats, got %v", got.Metadata.Value)
	}
	if !got.Metadata.CreatedAt.Equal(created) {
		t.Errorf("Expected creation time preserved, got %v", got.Metadata.CreatedAt)
	}
}

func TestEnrichmentIsIdempotent(t *testing.T) {
	e, store, _ := newTestEnricher(t)
	e.SelectPreset(PresetPeriapicalLength)
	e.SetActiveTooth(&ToothSelection{System: SystemFDI, Value: "11"})

	store.Add(lengthMeasurement("m1", 15.5))
	after := store.UpdateCount()

	enriched, _ := store.Get("m1")
	if _, changed := EnrichUpdated(enriched, fixedNow.Add(time.Hour)); changed {
		t.Error("Expected re-enrichment of an enriched measurement to report no change")
	}
	if _, changed := EnrichAdded(enriched, e.session.State(), fixedNow.Add(time.Hour)); changed {
		t.Error("Expected re-adding an enriched measurement to report no change")
	}

	// An update with identical content is re-notified once and must not loop.
	if err := store.Update(enriched); err != nil {
		t.Fatal(err)
	}
	if got := store.UpdateCount(); got != after+1 {
		t.Errorf("Expected only the explicit update, got %d updates (was %d)", got, after)
	}
}

func TestNonFiniteValueDoesNotLoop(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store, _ := newTestEnricher(t)
			e.SelectPreset(PresetCanalAngle)

			err := store.Add(Measurement{UID: "m1", ToolName: ToolAngle, Data: map[string]any{"angle": tt.value}})
			if err != nil {
				t.Fatal(err)
			}
			if got := store.UpdateCount(); got != 1 {
				t.Errorf("Expected a single stamping update, got %d", got)
			}

			m, _ := store.Get("m1")
			if m.Metadata.PresetID != PresetCanalAngle {
				t.Errorf("Expected preset %s, got %q", PresetCanalAngle, m.Metadata.PresetID)
			}
			if m.Metadata.Value != nil {
				t.Errorf("Expected no value, got %v", *m.Metadata.Value)
			}
			if _, err := json.Marshal(e.Export()); err != nil {
				t.Errorf("Export should stay encodable: %v", err)
			}
		})
	}
}

func TestMetadataEqualTreatsNaNAsSame(t *testing.T) {
	a, b := math.NaN(), math.NaN()
	if !(Metadata{PresetID: PresetCanalAngle, Value: &a}).Equal(Metadata{PresetID: PresetCanalAngle, Value: &b}) {
		t.Error("Expected NaN values to compare equal")
	}
}

func TestMeasuredValueSkipsNonFinite(t *testing.T) {
	p, _ := PresetByID(PresetPeriapicalLength)
	data := map[string]any{
		"length": math.NaN(),
		"cachedStats": map[string]any{
			"imageId:1": map[string]any{"length": 21.5},
		},
	}
	v, ok := MeasuredValue(p, data)
	if !ok || v != 21.5 {
		t.Errorf("MeasuredValue() = %v, %v; want 21.5 from cachedStats", v, ok)
	}
}

func TestUpdatedMeasurementIsRecomputed(t *testing.T) {
	e, store, _ := newTestEnricher(t)
	e.SelectPreset(PresetPeriapicalLength)
	store.Add(lengthMeasurement("m1", 15.5))

	// the user drags a handle; the toolset recomputes the length
	edited, _ := store.Get("m1")
	edited.Data = map[string]any{"length": 16.25}
	if err := store.Update(edited); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get("m1")
	if got.Metadata.Value == nil || *got.Metadata.Value != 16.25 {
		t.Errorf("Expected recomputed value 16.25, got %v", got.Metadata.Value)
	}
}

func TestUpdatedMeasurementRestoresLabel(t *testing.T) {
	e, store, _ := newTestEnricher(t)
	e.SelectPreset(PresetPeriapicalLength)
	e.SetActiveTooth(&ToothSelection{System: SystemFDI, Value: "21"})
	store.Add(lengthMeasurement("m1", 15.5))

	e.SelectPreset("")
	edited, _ := store.Get("m1")
	edited.Label = "renamed"
	store.Update(edited)

	got, _ := store.Get("m1")
	if got.Label != "PA length (FDI 21)" {
		t.Errorf("Expected label restored from metadata, got %q", got.Label)
	}
}

func TestTeardown(t *testing.T) {
	store := NewMemoryStore()
	e := NewEnricher(store, &fakeTools{}, NewSession(), nil)
	e.Start()
	e.SelectPreset(PresetPeriapicalLength)
	e.SetActiveTooth(&ToothSelection{System: SystemFDI, Value: "11"})

	e.Teardown()

	if e.ActivePreset() != "" || e.ActiveTooth() != nil {
		t.Error("Expected teardown to clear preset and tooth")
	}
	store.Add(lengthMeasurement("m1", 3))
	if store.UpdateCount() != 0 {
		t.Error("Expected no enrichment after teardown")
	}
}

func TestEnhanceExisting(t *testing.T) {
	e, store, _ := newTestEnricher(t)

	created := fixedNow
	tagged := lengthMeasurement("tagged", 5)
	tagged.Label = "Crown width (FDI 11)"
	tagged.Metadata = Metadata{PresetID: PresetCrownWidth, PresetLabel: "Crown width", Unit: "mm", CreatedAt: &created,
		Tooth: &ToothSelection{SystemFDI, "11"}}
	legacy := lengthMeasurement("legacy", 21)
	legacy.Label = "pa length (universal 8)"
	alias := lengthMeasurement("alias", 14)
	alias.Label = "Periapical"
	plain := lengthMeasurement("plain", 2)
	plain.Label = "Length 2 mm"

	for _, m := range []Measurement{tagged, legacy, alias, plain} {
		store.Add(m)
	}
	before, _ := store.Get("tagged")

	if n := e.EnhanceExisting(); n != 2 {
		t.Fatalf("Expected 2 measurements enhanced, got %d", n)
	}

	got, _ := store.Get("legacy")
	if got.Metadata.PresetID != PresetPeriapicalLength {
		t.Errorf("Expected legacy measurement tagged, got %q", got.Metadata.PresetID)
	}
	if got.Metadata.Tooth == nil || *got.Metadata.Tooth != (ToothSelection{SystemUniversal, "8"}) {
		t.Errorf("Expected tooth Universal 8, got %v", got.Metadata.Tooth)
	}
	if got.Label != "PA length (Universal 8)" {
		t.Errorf("Expected canonical label, got %q", got.Label)
	}

	got, _ = store.Get("alias")
	if got.Metadata.PresetID != PresetPeriapicalLength || got.Metadata.Tooth != nil {
		t.Errorf("Expected alias match without tooth, got %+v", got.Metadata)
	}

	got, _ = store.Get("plain")
	if got.HasDental() {
		t.Error("Expected unmatched label to stay untagged")
	}

	after, _ := store.Get("tagged")
	if after.Label != before.Label || !after.Metadata.Equal(before.Metadata) {
		t.Error("Expected tagged measurement to be left untouched")
	}
}

func TestInferFromLabelRejectsInvalidTooth(t *testing.T) {
	p, tooth, ok := InferFromLabel("Root length (FDI 99)")
	if !ok || p.ID != PresetRootLength {
		t.Fatalf("Expected root-length match, got %v %v", p.ID, ok)
	}
	if tooth != nil {
		t.Errorf("Expected invalid tooth to be dropped, got %v", tooth)
	}
}

func TestExportShape(t *testing.T) {
	value := 15.5
	m := Measurement{
		UID:      "uid-1",
		ToolName: ToolLength,
		Label:    "PA length (FDI 11)",
		Metadata: Metadata{
			PresetID:    PresetPeriapicalLength,
			PresetLabel: "PA length",
			Value:       &value,
			Unit:        "mm",
			Tooth:       &ToothSelection{System: SystemFDI, Value: "11"},
		},
	}

	b, err := json.Marshal(Export([]Measurement{m}))
	if err != nil {
		t.Fatal(err)
	}
	expected := `[{"uid":"uid-1","label":"PA length","value":15.5,"unit":"mm","tooth":{"system":"FDI","value":"11"},"source":"periapical-length"}]`
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestExportUntaggedMeasurement(t *testing.T) {
	rows := Export([]Measurement{{UID: "a", ToolName: ToolAngle, Label: "Angle", Data: map[string]any{"angle": 42.0}}})
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Source != ToolAngle || row.Unit != "°" || row.Value == nil || *row.Value != 42 || row.Tooth != nil {
		t.Errorf("Unexpected row %+v", row)
	}
}

func TestMetadataJSONKeepsHostKeys(t *testing.T) {
	in := `{"FrameOfReferenceUID":"1.2.3","dentalPresetId":"root-length","dentalValue":11.2,"dentalTooth":{"system":"FDI","value":"46"}}`
	var md Metadata
	if err := json.Unmarshal([]byte(in), &md); err != nil {
		t.Fatal(err)
	}
	if md.PresetID != PresetRootLength || md.Value == nil || *md.Value != 11.2 {
		t.Errorf("Dental keys not decoded: %+v", md)
	}
	if md.Extra["FrameOfReferenceUID"] != "1.2.3" {
		t.Errorf("Host key lost: %v", md.Extra)
	}

	out, err := json.Marshal(md)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	json.Unmarshal(out, &back)
	if back["FrameOfReferenceUID"] != "1.2.3" || back["dentalPresetId"] != "root-length" {
		t.Errorf("Round trip lost keys: %s", out)
	}
}

func TestCloneCopiesMaps(t *testing.T) {
	orig := Measurement{
		UID:  "m1",
		Data: map[string]any{"cachedStats": map[string]any{"t1": map[string]any{"length": 1.0}}},
		Metadata: Metadata{
			Extra: map[string]any{"hostKey": "a", "points": []any{1.0, 2.0}},
		},
	}

	c := orig.Clone()
	c.Metadata.Extra["hostKey"] = "b"
	c.Metadata.Extra["points"].([]any)[0] = 9.0
	c.Data["cachedStats"].(map[string]any)["t1"].(map[string]any)["length"] = 5.0

	if orig.Metadata.Extra["hostKey"] != "a" {
		t.Errorf("Extra aliased: %v", orig.Metadata.Extra["hostKey"])
	}
	if orig.Metadata.Extra["points"].([]any)[0] != 1.0 {
		t.Error("nested slice aliased")
	}
	if got := orig.Data["cachedStats"].(map[string]any)["t1"].(map[string]any)["length"]; got != 1.0 {
		t.Errorf("Data aliased: %v", got)
	}
}
