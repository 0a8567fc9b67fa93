// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package extension

import (
	"errors"
	"fmt"

	"github.com/danielhkuo/dental-viewer/dental"
)

// HangingProtocolID is the id the viewer's hanging protocol service registers
const HangingProtocolID = "@dental/hp-4up"

// Display set selector ids
const (
	SelectorCurrent       = "currentDisplaySetId"
	SelectorPrior         = "priorDisplaySetId"
	SelectorBitewingLeft  = "bitewingLeftDisplaySetId"
	SelectorBitewingRight = "bitewingRightDisplaySetId"
)

var ErrInvalidProtocol = errors.New("invalid hanging protocol")

// Protocol is the declarative hanging protocol handed to the viewer's
// hanging protocol engine. Field names follow the engine's JSON schema.
type Protocol struct {
	ID                       string                        `json:"id"`
	Name                     string                        `json:"name"`
	Description              string                        `json:"description"`
	Locked                   bool                          `json:"locked"`
	NumberOfPriorsReferenced int                           `json:"numberOfPriorsReferenced"`
	ProtocolMatchingRules    []MatchingRule                `json:"protocolMatchingRules"`
	ToolGroupIDs             []string                      `json:"toolGroupIds"`
	DisplaySetSelectors      map[string]DisplaySetSelector `json:"displaySetSelectors"`
	Stages                   []Stage                       `json:"stages"`
}

type MatchingRule struct {
	ID         string     `json:"id,omitempty"`
	Weight     int        `json:"weight,omitempty"`
	Attribute  string     `json:"attribute"`
	From       string     `json:"from,omitempty"`
	Constraint Constraint `json:"constraint"`
	Required   bool       `json:"required,omitempty"`
}

// Constraint sets exactly one operator
type Constraint struct {
	Equals      *Operand `json:"equals,omitempty"`
	Contains    *Operand `json:"contains,omitempty"`
	GreaterThan *Operand `json:"greaterThan,omitempty"`
}

type Operand struct {
	Value any `json:"value"`
}

type DisplaySetSelector struct {
	StudyMatchingRules  []MatchingRule `json:"studyMatchingRules,omitempty"`
	SeriesMatchingRules []MatchingRule `json:"seriesMatchingRules"`
}

type Stage struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	ViewportStructure ViewportStructure `json:"viewportStructure"`
	Viewports         []Viewport        `json:"viewports"`
}

type ViewportStructure struct {
	LayoutType string         `json:"layoutType"`
	Properties GridProperties `json:"properties"`
}

type GridProperties struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

type Viewport struct {
	ViewportOptions ViewportOptions `json:"viewportOptions"`
	DisplaySets     []DisplaySetRef `json:"displaySets"`
}

type ViewportOptions struct {
	ViewportID         string `json:"viewportId"`
	ViewportType       string `json:"viewportType"`
	ToolGroupID        string `json:"toolGroupId"`
	AllowUnmatchedView bool   `json:"allowUnmatchedView"`
}

type DisplaySetRef struct {
	ID                      string `json:"id"`
	MatchedDisplaySetsIndex int    `json:"matchedDisplaySetsIndex,omitempty"`
}

func studyIndexRule(index int) MatchingRule {
	return MatchingRule{
		Attribute:  "studyInstanceUIDsIndex",
		From:       "options",
		Required:   true,
		Constraint: Constraint{Equals: &Operand{Value: index}},
	}
}

func hasFramesRule() MatchingRule {
	return MatchingRule{
		Attribute:  "numImageFrames",
		Required:   true,
		Constraint: Constraint{GreaterThan: &Operand{Value: 0}},
	}
}

func bitewingRule() MatchingRule {
	return MatchingRule{
		Weight:     10,
		Attribute:  "SeriesDescription",
		Required:   true,
		Constraint: Constraint{Contains: &Operand{Value: "Bitewing"}},
	}
}

func viewport(id, toolGroupID, selector string, matchIndex int) Viewport {
	return Viewport{
		ViewportOptions: ViewportOptions{
			ViewportID:         id,
			ViewportType:       "stack",
			ToolGroupID:        toolGroupID,
			AllowUnmatchedView: true,
		},
		DisplaySets: []DisplaySetRef{{ID: selector, MatchedDisplaySetsIndex: matchIndex}},
	}
}

// DentalHangingProtocol returns the 2x2 layout: current study, prior study and
// two bitewing slots. A fresh value is built on every call.
func DentalHangingProtocol() Protocol {
	return Protocol{
		ID:                       HangingProtocolID,
		Name:                     "Dental 2x2",
		Description:              "Current and prior study with two bitewing viewports",
		Locked:                   true,
		NumberOfPriorsReferenced: 1,
		ProtocolMatchingRules:    []MatchingRule{},
		ToolGroupIDs:             append([]string(nil), dental.ToolGroups...),
		DisplaySetSelectors: map[string]DisplaySetSelector{
			SelectorCurrent: {
				StudyMatchingRules:  []MatchingRule{studyIndexRule(0)},
				SeriesMatchingRules: []MatchingRule{hasFramesRule()},
			},
			SelectorPrior: {
				StudyMatchingRules:  []MatchingRule{studyIndexRule(1)},
				SeriesMatchingRules: []MatchingRule{hasFramesRule()},
			},
			SelectorBitewingLeft: {
				SeriesMatchingRules: []MatchingRule{bitewingRule(), hasFramesRule()},
			},
			SelectorBitewingRight: {
				SeriesMatchingRules: []MatchingRule{bitewingRule(), hasFramesRule()},
			},
		},
		Stages: []Stage{
			{
				ID:   "dental-2x2",
				Name: "Dental 2x2",
				ViewportStructure: ViewportStructure{
					LayoutType: "grid",
					Properties: GridProperties{Rows: 2, Columns: 2},
				},
				Viewports: []Viewport{
					viewport("dental-current", dental.ToolGroups[0], SelectorCurrent, 0),
					viewport("dental-prior", dental.ToolGroups[1], SelectorPrior, 0),
					viewport("dental-bitewing-left", dental.ToolGroups[2], SelectorBitewingLeft, 0),
					viewport("dental-bitewing-right", dental.ToolGroups[3], SelectorBitewingRight, 1),
				},
			},
		},
	}
}

// Validate checks that each stage fills its grid and that every viewport
// points at a declared selector
func (p Protocol) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProtocol)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidProtocol)
	}
	for _, stage := range p.Stages {
		props := stage.ViewportStructure.Properties
		if props.Rows*props.Columns != len(stage.Viewports) {
			return fmt.Errorf("%w: stage %s has %d viewports for a %dx%d grid",
				ErrInvalidProtocol, stage.ID, len(stage.Viewports), props.Rows, props.Columns)
		}
		seen := make(map[string]bool)
		for _, vp := range stage.Viewports {
			id := vp.ViewportOptions.ViewportID
			if id == "" || seen[id] {
				return fmt.Errorf("%w: stage %s has a missing or duplicate viewport id %q", ErrInvalidProtocol, stage.ID, id)
			}
			seen[id] = true
			for _, ds := range vp.DisplaySets {
				if _, ok := p.DisplaySetSelectors[ds.ID]; !ok {
					return fmt.Errorf("%w: viewport %s references unknown selector %s", ErrInvalidProtocol, id, ds.ID)
				}
			}
		}
	}
	return nil
}
