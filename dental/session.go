// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

// State is a snapshot of the session inputs the enrichment reads
type State struct {
	PresetID string          `json:"presetId"`
	Tooth    *ToothSelection `json:"tooth"`
}

// Session holds the active preset and tooth for one viewer session.
// Not safe for concurrent use; callers serialize access.
type Session struct {
	presetID string
	tooth    *ToothSelection
}

func NewSession() *Session {
	return &Session{}
}

// ActivePreset returns the stored preset id, known or not
func (s *Session) ActivePreset() string {
	return s.presetID
}

func (s *Session) SetActivePreset(id string) {
	s.presetID = id
}

func (s *Session) ActiveTooth() *ToothSelection {
	if s.tooth == nil {
		return nil
	}
	t := *s.tooth
	return &t
}

// SetActiveTooth replaces the selection; nil clears it
func (s *Session) SetActiveTooth(t *ToothSelection) {
	if t == nil {
		s.tooth = nil
		return
	}
	cp := *t
	s.tooth = &cp
}

func (s *Session) State() State {
	return State{PresetID: s.presetID, Tooth: s.ActiveTooth()}
}

func (s *Session) Reset() {
	s.presetID = ""
	s.tooth = nil
}
