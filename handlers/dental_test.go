// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/extension"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/testutil"
)

func TestDentalCatalogue(t *testing.T) {
	h := NewDentalHandler(testutil.GetTestConfig())

	t.Run("presets", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Presets(w, testutil.MakeRequest("GET", "/api/dental/presets", nil, nil))
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp models.PresetsResponse
		testutil.AssertJSON(t, w, &resp)
		if len(resp.Presets) != 4 || resp.Presets[0].ID != dental.PresetPeriapicalLength {
			t.Errorf("Unexpected presets: %+v", resp.Presets)
		}
	})

	t.Run("hanging protocol", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HangingProtocol(w, testutil.MakeRequest("GET", "/api/dental/hanging-protocol", nil, nil))
		testutil.AssertStatus(t, w, http.StatusOK)

		var p extension.Protocol
		testutil.AssertJSON(t, w, &p)
		if p.ID != extension.HangingProtocolID {
			t.Errorf("Expected %s, got %s", extension.HangingProtocolID, p.ID)
		}
		if len(p.Stages) != 1 || len(p.Stages[0].Viewports) != 4 {
			t.Errorf("Expected one stage of 4 viewports, got %+v", p.Stages)
		}
	})

	t.Run("manifest", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Manifest(w, testutil.MakeRequest("GET", "/api/dental/manifest", nil, nil))
		testutil.AssertStatus(t, w, http.StatusOK)

		var m extension.Manifest
		testutil.AssertJSON(t, w, &m)
		if m.ID != extension.ExtensionID || m.Mode.ID != extension.ModeID {
			t.Errorf("Unexpected manifest ids: %s / %s", m.ID, m.Mode.ID)
		}
		if len(m.CommandsModule.Definitions) != len(extension.CommandNames) {
			t.Errorf("Expected %d commands, got %v", len(extension.CommandNames), m.CommandsModule.Definitions)
		}
	})
}

func TestDentalEnrich(t *testing.T) {
	h := NewDentalHandler(testutil.GetTestConfig())
	fixed := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	testCases := []struct {
		name        string
		body        string
		wantStatus  int
		wantChanged bool
		wantLabel   string
	}{
		{
			name:        "angle preset with tooth",
			body:        `{"presetId":"canal-angle","tooth":{"system":"universal","value":"3"},"measurement":{"uid":"m1","toolName":"Angle","data":{"angle":23.5},"metadata":{"hostKey":"kept"}}}`,
			wantStatus:  http.StatusOK,
			wantChanged: true,
			wantLabel:   "Canal angle (Universal 3)",
		},
		{
			name:        "no preset, plain measurement",
			body:        `{"measurement":{"uid":"m2","toolName":"Length","label":"12 mm","data":{"length":12}}}`,
			wantStatus:  http.StatusOK,
			wantChanged: false,
			wantLabel:   "12 mm",
		},
		{
			name:        "unknown preset",
			body:        `{"presetId":"implant-depth","measurement":{"uid":"m3","toolName":"Length","label":"x"}}`,
			wantStatus:  http.StatusOK,
			wantChanged: false,
			wantLabel:   "x",
		},
		{
			name:       "invalid tooth",
			body:       `{"presetId":"canal-angle","tooth":{"system":"FDI","value":"19"},"measurement":{"uid":"m4"}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "broken json",
			body:       `{"measurement":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Enrich(w, httptest.NewRequest("POST", "/api/dental/measurements/enrich", strings.NewReader(tc.body)))
			testutil.AssertStatus(t, w, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}

			var resp models.EnrichResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Changed != tc.wantChanged {
				t.Errorf("Expected changed=%v, got %v", tc.wantChanged, resp.Changed)
			}
			if resp.Measurement.Label != tc.wantLabel {
				t.Errorf("Expected label '%s', got '%s'", tc.wantLabel, resp.Measurement.Label)
			}
		})
	}

	// The stamped metadata keeps host keys alongside the dental ones
	w := httptest.NewRecorder()
	h.Enrich(w, httptest.NewRequest("POST", "/api/dental/measurements/enrich", strings.NewReader(testCases[0].body)))
	var resp models.EnrichResponse
	testutil.AssertJSON(t, w, &resp)
	md := resp.Measurement.Metadata
	if md.PresetID != dental.PresetCanalAngle || md.Unit != "°" {
		t.Errorf("Unexpected preset metadata: %+v", md)
	}
	if md.Value == nil || *md.Value != 23.5 {
		t.Errorf("Expected value 23.5, got %v", md.Value)
	}
	if md.CreatedAt == nil || !md.CreatedAt.Equal(fixed) {
		t.Errorf("Expected createdAt %v, got %v", fixed, md.CreatedAt)
	}
	if md.Extra["hostKey"] != "kept" {
		t.Errorf("Expected host metadata preserved, got %v", md.Extra)
	}
}

func TestDentalExport(t *testing.T) {
	h := NewDentalHandler(testutil.GetTestConfig())

	body := `{"measurements":[
		{"uid":"a","toolName":"Length","label":"PA length (FDI 11)","metadata":{"dentalPresetId":"periapical-length","dentalPresetLabel":"PA length","dentalUnit":"mm","dentalValue":21.4,"dentalTooth":{"system":"FDI","value":"11"}}},
		{"uid":"b","toolName":"Length","label":"12.3 mm","data":{"length":12.3}}
	]}`
	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest("POST", "/api/dental/measurements/export", strings.NewReader(body)))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.ExportResponse
	testutil.AssertJSON(t, w, &resp)
	if len(resp.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(resp.Rows))
	}
	dentalRow, plainRow := resp.Rows[0], resp.Rows[1]
	if dentalRow.Label != "PA length" || dentalRow.Source != dental.PresetPeriapicalLength {
		t.Errorf("Unexpected dental row: %+v", dentalRow)
	}
	if dentalRow.Tooth == nil || dentalRow.Tooth.Value != "11" {
		t.Errorf("Expected tooth 11, got %+v", dentalRow.Tooth)
	}
	if plainRow.Source != dental.ToolLength || plainRow.Unit != "mm" || plainRow.Value == nil || *plainRow.Value != 12.3 {
		t.Errorf("Unexpected plain row: %+v", plainRow)
	}

	w = httptest.NewRecorder()
	h.Export(w, httptest.NewRequest("POST", "/api/dental/measurements/export", strings.NewReader(`{}`)))
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &resp)
	if resp.Rows == nil || len(resp.Rows) != 0 {
		t.Errorf("Expected an empty row list, got %v", resp.Rows)
	}
}

func TestToothValues(t *testing.T) {
	h := NewDentalHandler(testutil.GetTestConfig())

	testCases := []struct {
		system     string
		wantStatus int
		wantSystem string
	}{
		{"FDI", http.StatusOK, "FDI"},
		{"universal", http.StatusOK, "Universal"},
		{"Palmer", http.StatusBadRequest, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.system, func(t *testing.T) {
			req := testutil.MakeRequest("GET", "/api/dental/teeth/"+tc.system, nil, nil)
			req.SetPathValue("system", tc.system)
			w := httptest.NewRecorder()
			h.ToothValues(w, req)
			testutil.AssertStatus(t, w, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}

			var resp models.ToothValuesResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.System != tc.wantSystem || len(resp.Values) != 52 {
				t.Errorf("Expected 52 %s teeth, got %s with %d", tc.wantSystem, resp.System, len(resp.Values))
			}
		})
	}
}

func TestConvertTooth(t *testing.T) {
	h := NewDentalHandler(testutil.GetTestConfig())

	testCases := []struct {
		name       string
		query      string
		wantStatus int
		wantTo     dental.ToothSelection
	}{
		{"fdi to universal", "?from=FDI&value=11", http.StatusOK, dental.ToothSelection{System: dental.SystemUniversal, Value: "8"}},
		{"universal to fdi", "?from=Universal&value=17", http.StatusOK, dental.ToothSelection{System: dental.SystemFDI, Value: "38"}},
		{"deciduous lowercase", "?from=universal&value=f", http.StatusOK, dental.ToothSelection{System: dental.SystemFDI, Value: "61"}},
		{"explicit target", "?from=FDI&value=85&to=Universal", http.StatusOK, dental.ToothSelection{System: dental.SystemUniversal, Value: "T"}},
		{"invalid tooth", "?from=FDI&value=19", http.StatusBadRequest, dental.ToothSelection{}},
		{"unknown from", "?from=Palmer&value=1", http.StatusBadRequest, dental.ToothSelection{}},
		{"unknown to", "?from=FDI&value=11&to=Palmer", http.StatusBadRequest, dental.ToothSelection{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ConvertTooth(w, testutil.MakeRequest("GET", "/api/dental/teeth/convert"+tc.query, nil, nil))
			testutil.AssertStatus(t, w, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}

			var resp models.ToothConvertResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.To != tc.wantTo {
				t.Errorf("Expected %v, got %v", tc.wantTo, resp.To)
			}
		})
	}
}
