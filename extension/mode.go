// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package extension

import (
	"errors"
	"fmt"

	"github.com/danielhkuo/dental-viewer/dental"
	"go.uber.org/zap"
)

var (
	ErrModeActive   = errors.New("mode already active")
	ErrModeInactive = errors.New("mode not active")
	ErrUnknownTheme = errors.New("unknown theme")
)

// Tools added to every dental tool group on mode entry
var defaultTools = []string{"WindowLevel", "Pan", "Zoom", "StackScroll", dental.ToolLength, dental.ToolAngle}

// ToolGroupService is the viewer's tool group service
type ToolGroupService interface {
	CreateToolGroup(id string, tools []string) error
	SetActiveTool(toolGroupID, toolName string) error
}

// Host bundles the viewer services the mode talks to. Either may be nil.
type Host struct {
	Measurements dental.MeasurementStore
	ToolGroups   ToolGroupService
}

// ModeState is what the tooth selector and theme toggle render from
type ModeState struct {
	Active   bool                   `json:"active"`
	Theme    string                 `json:"theme"`
	PresetID string                 `json:"presetId"`
	Tooth    *dental.ToothSelection `json:"tooth"`
}

// Mode is the dental mode lifecycle: Enter wires tool groups and subscribes
// the enricher, Exit tears it down.
type Mode struct {
	logger   *zap.Logger
	session  *dental.Session
	enricher *dental.Enricher
	commands *CommandRegistry
	theme    string
	active   bool
}

func NewMode(logger *zap.Logger) *Mode {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mode{
		logger:   logger,
		session:  dental.NewSession(),
		commands: NewCommandRegistry(),
		theme:    ThemeDark,
	}
	m.registerCommands()
	return m
}

// Enter is the mode-entry hook
func (m *Mode) Enter(host Host) error {
	if m.active {
		return ErrModeActive
	}

	var tools dental.ToolActivator
	if host.ToolGroups != nil {
		for _, id := range dental.ToolGroups {
			if err := host.ToolGroups.CreateToolGroup(id, defaultTools); err != nil {
				m.logger.Warn("tool group creation failed", zap.String("toolGroupID", id), zap.Error(err))
			}
		}
		tools = host.ToolGroups
	} else {
		m.logger.Debug("no tool group service; presets will not activate tools")
	}

	m.enricher = dental.NewEnricher(host.Measurements, tools, m.session, m.logger)
	m.enricher.Start()
	m.active = true

	m.logger.Info("dental mode entered", zap.String("modeID", ModeID))
	return nil
}

// Exit is the mode-exit hook. Safe to call when not active.
func (m *Mode) Exit() {
	if !m.active {
		return
	}
	m.enricher.Teardown()
	m.enricher = nil
	m.active = false
	m.logger.Info("dental mode exited", zap.String("modeID", ModeID))
}

func (m *Mode) Active() bool {
	return m.active
}

// Enricher returns nil while the mode is not active
func (m *Mode) Enricher() *dental.Enricher {
	return m.enricher
}

func (m *Mode) Commands() *CommandRegistry {
	return m.commands
}

func (m *Mode) Theme() string {
	return m.theme
}

func (m *Mode) SetTheme(id string) error {
	for _, t := range themes() {
		if t.ID == id {
			m.theme = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTheme, id)
}

func (m *Mode) ToggleTheme() string {
	m.theme = NextTheme(m.theme)
	return m.theme
}

func (m *Mode) State() ModeState {
	st := m.session.State()
	return ModeState{
		Active:   m.active,
		Theme:    m.theme,
		PresetID: st.PresetID,
		Tooth:    st.Tooth,
	}
}

func (m *Mode) registerCommands() {
	m.commands.Register(CommandToggleTheme, func(args map[string]any) (any, error) {
		return map[string]string{"theme": m.ToggleTheme()}, nil
	})

	m.commands.Register(CommandSelectPreset, func(args map[string]any) (any, error) {
		if !m.active {
			return nil, ErrModeInactive
		}
		m.enricher.SelectPreset(stringArg(args, "presetId"))
		return m.State(), nil
	})

	m.commands.Register(CommandSetActiveTooth, func(args map[string]any) (any, error) {
		if !m.active {
			return nil, ErrModeInactive
		}
		system, err := dental.ParseSystem(stringArg(args, "system"))
		if err != nil {
			return nil, err
		}
		tooth := dental.ToothSelection{System: system, Value: stringArg(args, "value")}
		if err := tooth.Validate(); err != nil {
			return nil, err
		}
		m.enricher.SetActiveTooth(&tooth)
		return m.State(), nil
	})

	m.commands.Register(CommandClearActiveTooth, func(args map[string]any) (any, error) {
		if !m.active {
			return nil, ErrModeInactive
		}
		m.enricher.SetActiveTooth(nil)
		return m.State(), nil
	})

	m.commands.Register(CommandEnhanceExisting, func(args map[string]any) (any, error) {
		if !m.active {
			return nil, ErrModeInactive
		}
		return map[string]int{"updated": m.enricher.EnhanceExisting()}, nil
	})

	m.commands.Register(CommandExport, func(args map[string]any) (any, error) {
		if !m.active {
			return nil, ErrModeInactive
		}
		return m.enricher.Export(), nil
	})
}
