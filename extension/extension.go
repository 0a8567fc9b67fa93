// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package extension

import "github.com/danielhkuo/dental-viewer/dental"

const (
	ExtensionID = "@dental/extension-dental"
	ModeID      = "@dental/mode-dental"
	Version     = "1.0.0"
)

// Command names exposed through the commands module
const (
	CommandToggleTheme      = "toggleDentalTheme"
	CommandSelectPreset     = "selectDentalPreset"
	CommandSetActiveTooth   = "setActiveTooth"
	CommandClearActiveTooth = "clearActiveTooth"
	CommandEnhanceExisting  = "enhanceExistingMeasurements"
	CommandExport           = "exportDentalMeasurements"
)

// CommandNames lists every command the mode registers
var CommandNames = []string{
	CommandToggleTheme,
	CommandSelectPreset,
	CommandSetActiveTooth,
	CommandClearActiveTooth,
	CommandEnhanceExisting,
	CommandExport,
}

// Manifest is what the viewer's extension loader reads at startup
type Manifest struct {
	ID                    string                `json:"id"`
	Version               string                `json:"version"`
	Mode                  ModeDescriptor        `json:"mode"`
	PanelModule           []Panel               `json:"panelModule"`
	CustomizationModule   []Theme               `json:"customizationModule"`
	CommandsModule        CommandsModule        `json:"commandsModule"`
	HangingProtocolModule []HangingProtocolItem `json:"hangingProtocolModule"`
	MeasurementPresets    []dental.Preset       `json:"measurementPresets"`
}

type ModeDescriptor struct {
	ID              string   `json:"id"`
	RouteName       string   `json:"routeName"`
	DisplayName     string   `json:"displayName"`
	HangingProtocol string   `json:"hangingProtocol"`
	ToolGroupIDs    []string `json:"toolGroupIds"`
	DefaultTheme    string   `json:"defaultTheme"`
}

type Panel struct {
	Name      string `json:"name"`
	IconName  string `json:"iconName"`
	IconLabel string `json:"iconLabel"`
	Label     string `json:"label"`
	Side      string `json:"side"`
}

type CommandsModule struct {
	DefaultContext string   `json:"defaultContext"`
	Definitions    []string `json:"definitions"`
}

type HangingProtocolItem struct {
	Name     string   `json:"name"`
	Protocol Protocol `json:"protocol"`
}

// BuildManifest assembles the registration descriptors
func BuildManifest() Manifest {
	return Manifest{
		ID:      ExtensionID,
		Version: Version,
		Mode: ModeDescriptor{
			ID:              ModeID,
			RouteName:       "dental",
			DisplayName:     "Dental",
			HangingProtocol: HangingProtocolID,
			ToolGroupIDs:    append([]string(nil), dental.ToolGroups...),
			DefaultTheme:    ThemeDark,
		},
		PanelModule: []Panel{
			{
				Name:      "dentalMeasurements",
				IconName:  "tab-linear",
				IconLabel: "Measure",
				Label:     "Dental Measurements",
				Side:      "right",
			},
			{
				Name:      "toothSelector",
				IconName:  "tool-annotate",
				IconLabel: "Tooth",
				Label:     "Tooth Selector",
				Side:      "left",
			},
		},
		CustomizationModule: themes(),
		CommandsModule: CommandsModule{
			DefaultContext: "DENTAL",
			Definitions:    append([]string(nil), CommandNames...),
		},
		HangingProtocolModule: []HangingProtocolItem{
			{Name: HangingProtocolID, Protocol: DentalHangingProtocol()},
		},
		MeasurementPresets: dental.Presets(),
	}
}
