// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"time"

	"go.uber.org/zap"
)

// ToolGroups are the viewer tool groups a preset selection activates tools in
var ToolGroups = []string{
	"dental-current",
	"dental-prior",
	"dental-bitewing-left",
	"dental-bitewing-right",
}

// ToolActivator is the viewer's tool group service
type ToolActivator interface {
	SetActiveTool(toolGroupID, toolName string) error
}

// Enricher stamps dental metadata onto measurements as the viewer reports them.
// A nil store or activator turns the corresponding work into a no-op.
type Enricher struct {
	store       MeasurementStore
	tools       ToolActivator
	session     *Session
	logger      *zap.Logger
	now         func() time.Time
	unsubscribe func()
}

func NewEnricher(store MeasurementStore, tools ToolActivator, session *Session, logger *zap.Logger) *Enricher {
	if session == nil {
		session = NewSession()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		store:   store,
		tools:   tools,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for creation timestamps
func (e *Enricher) SetClock(now func() time.Time) {
	e.now = now
}

// Start subscribes to store events. Calling it twice is harmless.
func (e *Enricher) Start() {
	if e.store == nil || e.unsubscribe != nil {
		return
	}
	e.unsubscribe = e.store.Subscribe(e.handle)
}

// Teardown releases the subscription and clears preset and tooth
func (e *Enricher) Teardown() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.session.Reset()
}

// SelectPreset stores id as active and activates the preset's tool in every
// dental tool group. Unknown ids are stored but activate nothing.
func (e *Enricher) SelectPreset(id string) {
	e.session.SetActivePreset(id)

	p, ok := PresetByID(id)
	if !ok {
		e.logger.Debug("unknown preset selected", zap.String("presetID", id))
		return
	}
	if e.tools == nil {
		return
	}
	for _, group := range ToolGroups {
		if err := e.tools.SetActiveTool(group, p.ToolName); err != nil {
			e.logger.Warn("tool activation failed",
				zap.String("toolGroupID", group),
				zap.String("toolName", p.ToolName),
				zap.Error(err))
		}
	}
}

func (e *Enricher) ActivePreset() string {
	return e.session.ActivePreset()
}

func (e *Enricher) SetActiveTooth(t *ToothSelection) {
	e.session.SetActiveTooth(t)
}

func (e *Enricher) ActiveTooth() *ToothSelection {
	return e.session.ActiveTooth()
}

func (e *Enricher) handle(ev Event) {
	var (
		out     Measurement
		changed bool
	)
	switch ev.Type {
	case EventAdded:
		out, changed = EnrichAdded(ev.Measurement, e.session.State(), e.now())
	case EventUpdated:
		out, changed = EnrichUpdated(ev.Measurement, e.now())
	default:
		return
	}
	if !changed {
		return
	}
	e.apply(out)
}

func (e *Enricher) apply(m Measurement) {
	if err := e.store.Update(m); err != nil {
		e.logger.Warn("measurement update failed", zap.String("uid", m.UID), zap.Error(err))
		return
	}
	e.logger.Debug("measurement enriched",
		zap.String("uid", m.UID),
		zap.String("label", m.Label),
		zap.String("presetID", m.Metadata.PresetID))
}

// Export renders the store's measurements in the export shape
func (e *Enricher) Export() []ExportRow {
	if e.store == nil {
		return []ExportRow{}
	}
	return Export(e.store.Measurements())
}
