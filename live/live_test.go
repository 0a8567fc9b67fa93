// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/dental"
)

type received struct {
	Type string          `json:"type"`
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

type liveServer struct {
	hub    *Hub
	issuer *auth.TokenIssuer
	url    string
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()

	issuer := auth.NewTokenIssuer("live-test-secret", time.Hour)
	hub := NewHub(issuer, "*", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &liveServer{hub: hub, issuer: issuer, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (s *liveServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	token, _, err := s.issuer.Issue(userID, "drsmith", "dentist")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Every connection starts with its state
	expectType(t, conn, TypeState)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "data": data}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func expectType(t *testing.T, conn *websocket.Conn, msgType string) received {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON waiting for %s: %v", msgType, err)
	}
	if msg.Type != msgType {
		t.Fatalf("Expected %s, got %s: %s", msgType, msg.Type, msg.Data)
	}
	return msg
}

func decode(t *testing.T, msg received, v any) {
	t.Helper()
	if err := json.Unmarshal(msg.Data, v); err != nil {
		t.Fatalf("Failed to decode %s data: %v", msg.Type, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeHTTP_RequiresToken(t *testing.T) {
	s := newLiveServer(t)

	testCases := []struct {
		name string
		url  string
	}{
		{"no token", s.url},
		{"bad token", s.url + "?token=not-a-jwt"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
			if err == nil {
				t.Fatal("Expected handshake failure")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %+v", resp)
			}
		})
	}
}

func TestServeHTTP_QueryToken(t *testing.T) {
	s := newLiveServer(t)

	token, _, err := s.issuer.Issue("user-q", "drq", "dentist")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg := expectType(t, conn, TypeState)
	var st State
	decode(t, msg, &st)
	if !st.Active || st.Theme != "dental-dark" {
		t.Errorf("Expected active dark mode, got %+v", st)
	}
}

func TestHub_TracksConnectionsPerUser(t *testing.T) {
	s := newLiveServer(t)

	first := s.dial(t, "user-1")
	s.dial(t, "user-1")
	s.dial(t, "user-2")

	waitFor(t, func() bool { return s.hub.ConnectionCount("user-1") == 2 })
	waitFor(t, func() bool { return s.hub.Total() == 3 })

	first.Close()
	waitFor(t, func() bool { return s.hub.ConnectionCount("user-1") == 1 })
	if n := s.hub.ConnectionCount("user-2"); n != 1 {
		t.Errorf("Expected 1 connection for user-2, got %d", n)
	}
}

func TestLiveSession_EnrichesMeasurements(t *testing.T) {
	s := newLiveServer(t)
	conn := s.dial(t, "user-1")

	send(t, conn, TypeHeartbeat, nil)
	expectType(t, conn, TypeHeartbeatResponse)

	// Selecting a preset activates its tool in every dental tool group
	send(t, conn, TypeSelectPreset, map[string]string{"presetId": dental.PresetPeriapicalLength})
	for _, group := range dental.ToolGroups {
		msg := expectType(t, conn, TypeActivateTool)
		var at ActivateTool
		decode(t, msg, &at)
		if at.ToolGroupID != group || at.ToolName != dental.ToolLength {
			t.Errorf("Expected %s/Length, got %+v", group, at)
		}
	}
	var st State
	decode(t, expectType(t, conn, TypeState), &st)
	if st.PresetID != dental.PresetPeriapicalLength {
		t.Errorf("Expected preset in state, got %+v", st)
	}

	send(t, conn, TypeSetTooth, map[string]string{"system": "fdi", "value": "11"})
	decode(t, expectType(t, conn, TypeState), &st)
	if st.Tooth == nil || st.Tooth.System != dental.SystemFDI || st.Tooth.Value != "11" {
		t.Errorf("Expected tooth FDI 11, got %+v", st.Tooth)
	}

	send(t, conn, TypeMeasurementAdded, map[string]any{
		"uid":      "m1",
		"toolName": "Length",
		"data":     map[string]any{"length": 20.5},
		"metadata": map[string]any{"hostKey": "kept"},
	})
	var m dental.Measurement
	decode(t, expectType(t, conn, TypeMeasurementUpdate), &m)
	if m.UID != "m1" || m.Label != "PA length (FDI 11)" {
		t.Errorf("Expected labelled m1, got %+v", m)
	}
	if m.Metadata.Value == nil || *m.Metadata.Value != 20.5 || m.Metadata.Extra["hostKey"] != "kept" {
		t.Errorf("Unexpected metadata: %+v", m.Metadata)
	}

	// A label the viewer overwrote is restored from the preset
	m.Label = "edited"
	send(t, conn, TypeMeasurementUpdated, m)
	var restored dental.Measurement
	decode(t, expectType(t, conn, TypeMeasurementUpdate), &restored)
	if restored.Label != "PA length (FDI 11)" {
		t.Errorf("Expected label restored, got '%s'", restored.Label)
	}

	send(t, conn, TypeExport, nil)
	var rows []dental.ExportRow
	decode(t, expectType(t, conn, TypeExportResult), &rows)
	if len(rows) != 1 || rows[0].Source != dental.PresetPeriapicalLength || rows[0].Unit != "mm" {
		t.Errorf("Unexpected export: %+v", rows)
	}

	send(t, conn, TypeMeasurementRemoved, map[string]string{"uid": "m1"})
	send(t, conn, TypeExport, nil)
	decode(t, expectType(t, conn, TypeExportResult), &rows)
	if len(rows) != 0 {
		t.Errorf("Expected empty export after removal, got %+v", rows)
	}
}

func TestLiveSession_EnhanceExisting(t *testing.T) {
	s := newLiveServer(t)
	conn := s.dial(t, "user-1")

	// No preset is active, so the added measurement is left alone
	send(t, conn, TypeMeasurementAdded, map[string]any{"uid": "old", "toolName": "Angle", "label": "Canal angle 11", "data": map[string]any{"angle": 31.0}})
	send(t, conn, TypeEnhanceExisting, nil)

	var m dental.Measurement
	decode(t, expectType(t, conn, TypeMeasurementUpdate), &m)
	if m.Metadata.PresetID != dental.PresetCanalAngle {
		t.Errorf("Expected canal angle preset inferred, got %+v", m.Metadata)
	}

	var st State
	decode(t, expectType(t, conn, TypeState), &st)
	if st.Enhanced == nil || *st.Enhanced != 1 || st.Measurements != 1 {
		t.Errorf("Expected 1 enhanced of 1, got %+v", st)
	}
}

func TestLiveSession_Errors(t *testing.T) {
	s := newLiveServer(t)
	conn := s.dial(t, "user-1")

	testCases := []struct {
		name     string
		msgType  string
		data     any
		wantCode int
	}{
		{"unknown type", "zoom_in", nil, ErrUnknownType.Code},
		{"measurement without uid", TypeMeasurementAdded, map[string]any{"label": "x"}, ErrInvalidData.Code},
		{"update of unknown measurement", TypeMeasurementUpdated, map[string]any{"uid": "ghost"}, ErrMeasurementNotFound.Code},
		{"remove unknown", TypeMeasurementRemoved, map[string]any{"uid": "ghost"}, ErrMeasurementNotFound.Code},
		{"invalid tooth", TypeSetTooth, map[string]any{"system": "FDI", "value": "19"}, ErrInvalidTooth.Code},
		{"unknown system", TypeSetTooth, map[string]any{"system": "Palmer", "value": "1"}, ErrInvalidTooth.Code},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			send(t, conn, tc.msgType, tc.data)
			msg := expectType(t, conn, TypeError)
			if msg.Code != tc.wantCode {
				t.Errorf("Expected code %d, got %d (%s)", tc.wantCode, msg.Code, msg.Data)
			}
		})
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if msg := expectType(t, conn, TypeError); msg.Code != ErrInvalidData.Code {
		t.Errorf("Expected invalid data, got %d", msg.Code)
	}

	// The connection survives errors
	send(t, conn, TypeToggleTheme, nil)
	var st State
	decode(t, expectType(t, conn, TypeState), &st)
	if st.Theme != "dental-light" {
		t.Errorf("Expected light theme after toggle, got %s", st.Theme)
	}
}
