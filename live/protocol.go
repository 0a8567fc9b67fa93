// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"encoding/json"

	"github.com/danielhkuo/dental-viewer/dental"
)

// Client to server message types
const (
	TypeHeartbeat           = "heartbeat"
	TypeMeasurementAdded    = "measurement_added"
	TypeMeasurementUpdated  = "measurement_updated"
	TypeMeasurementRemoved  = "measurement_removed"
	TypeMeasurementsCleared = "measurements_cleared"
	TypeSelectPreset        = "select_preset"
	TypeSetTooth            = "set_tooth"
	TypeToggleTheme         = "toggle_theme"
	TypeEnhanceExisting     = "enhance_existing"
	TypeExport              = "export"
)

// Server to client message types
const (
	TypeHeartbeatResponse = "heartbeat_response"
	TypeMeasurementUpdate = "measurement_update"
	TypeActivateTool      = "activate_tool"
	TypeState             = "state"
	TypeExportResult      = "export_result"
	TypeError             = "error"
)

const CodeSuccess = 0

// ErrorMessage is a coded failure sent back as a TypeError message
type ErrorMessage struct {
	Code    int
	Message string
}

var (
	ErrInvalidData         = ErrorMessage{Code: 1001, Message: "Invalid data"}
	ErrUnknownType         = ErrorMessage{Code: 1002, Message: "Unknown message type"}
	ErrMeasurementNotFound = ErrorMessage{Code: 1003, Message: "Measurement not found"}
	ErrMeasurementExists   = ErrorMessage{Code: 1004, Message: "Measurement already exists"}
	ErrInvalidTooth        = ErrorMessage{Code: 1005, Message: "Invalid tooth selection"}
	ErrInternal            = ErrorMessage{Code: 2000, Message: "Internal server error"}
)

// Message is the envelope for both directions. Inbound Data is decoded per
// type; outbound Data is any JSON value.
type Message struct {
	Type string `json:"type"`
	Code int    `json:"code"`
	Data any    `json:"data"`
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type removePayload struct {
	UID string `json:"uid"`
}

type presetPayload struct {
	PresetID string `json:"presetId"`
}

// tooth payload; an empty system clears the selection
type toothPayload struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// ActivateTool asks the viewer to make a tool active in one tool group
type ActivateTool struct {
	ToolGroupID string `json:"toolGroupId"`
	ToolName    string `json:"toolName"`
}

// State mirrors extension.ModeState plus the connection's measurement count
type State struct {
	Active       bool                   `json:"active"`
	Theme        string                 `json:"theme"`
	PresetID     string                 `json:"presetId"`
	Tooth        *dental.ToothSelection `json:"tooth"`
	Measurements int                    `json:"measurements"`
	Enhanced     *int                   `json:"enhanced,omitempty"`
}

func errorMessage(e ErrorMessage, detail string) Message {
	msg := e.Message
	if detail != "" {
		msg += ": " + detail
	}
	return Message{Type: TypeError, Code: e.Code, Data: msg}
}
