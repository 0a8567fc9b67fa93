// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dental

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NumberingSystem names a tooth notation
type NumberingSystem string

const (
	SystemFDI       NumberingSystem = "FDI"
	SystemUniversal NumberingSystem = "Universal"
)

var (
	ErrUnknownSystem = errors.New("unknown tooth numbering system")
	ErrInvalidTooth  = errors.New("invalid tooth value")
)

// ToothSelection is the tooth currently picked in the selector
type ToothSelection struct {
	System NumberingSystem `json:"system" bson:"system"`
	Value  string          `json:"value" bson:"value"`
}

// String renders the selection the way labels show it, e.g. "FDI 11"
func (t ToothSelection) String() string {
	return string(t.System) + " " + t.Value
}

// ParseSystem accepts the canonical names case-insensitively
func ParseSystem(s string) (NumberingSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fdi":
		return SystemFDI, nil
	case "universal":
		return SystemUniversal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSystem, s)
}

// Validate checks the value against the chart of its numbering system
func (t ToothSelection) Validate() error {
	values, err := ToothValues(t.System)
	if err != nil {
		return err
	}
	for _, v := range values {
		if v == t.Value {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTooth, t)
}

// ToothValues lists every valid tooth for a system, permanent dentition first
func ToothValues(system NumberingSystem) ([]string, error) {
	switch system {
	case SystemFDI:
		var out []string
		for quadrant := 1; quadrant <= 4; quadrant++ {
			for tooth := 1; tooth <= 8; tooth++ {
				out = append(out, strconv.Itoa(quadrant*10+tooth))
			}
		}
		for quadrant := 5; quadrant <= 8; quadrant++ {
			for tooth := 1; tooth <= 5; tooth++ {
				out = append(out, strconv.Itoa(quadrant*10+tooth))
			}
		}
		return out, nil
	case SystemUniversal:
		out := make([]string, 0, 52)
		for n := 1; n <= 32; n++ {
			out = append(out, strconv.Itoa(n))
		}
		for c := 'A'; c <= 'T'; c++ {
			out = append(out, string(c))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, system)
}

// Convert translates a tooth into the other numbering system.
// Universal numbering runs 1-16 across the upper arch from the patient's right,
// then 17-32 back along the lower arch. Deciduous letters follow the same path.
func Convert(t ToothSelection, to NumberingSystem) (ToothSelection, error) {
	if err := t.Validate(); err != nil {
		return ToothSelection{}, err
	}
	if _, err := ToothValues(to); err != nil {
		return ToothSelection{}, err
	}
	if t.System == to {
		return t, nil
	}

	if t.System == SystemFDI {
		n, _ := strconv.Atoi(t.Value)
		quadrant, tooth := n/10, n%10
		if quadrant >= 5 {
			pos := universalPosition(quadrant-4, tooth, 5)
			return ToothSelection{System: SystemUniversal, Value: string(rune('A' + pos - 1))}, nil
		}
		pos := universalPosition(quadrant, tooth, 8)
		return ToothSelection{System: SystemUniversal, Value: strconv.Itoa(pos)}, nil
	}

	// Universal -> FDI
	if r := t.Value[0]; r >= 'A' && r <= 'T' {
		quadrant, tooth := fdiPosition(int(r-'A')+1, 5)
		return ToothSelection{System: SystemFDI, Value: strconv.Itoa((quadrant+4)*10 + tooth)}, nil
	}
	n, _ := strconv.Atoi(t.Value)
	quadrant, tooth := fdiPosition(n, 8)
	return ToothSelection{System: SystemFDI, Value: strconv.Itoa(quadrant*10 + tooth)}, nil
}

// universalPosition maps an FDI quadrant (1-4) and tooth index to the 1-based
// sequential position used by Universal numbering. perQuadrant is 8 or 5.
func universalPosition(quadrant, tooth, perQuadrant int) int {
	switch quadrant {
	case 1: // upper right, counted from the back
		return perQuadrant - tooth + 1
	case 2: // upper left, counted from the midline
		return perQuadrant + tooth
	case 3: // lower left, counted from the back
		return 3*perQuadrant - tooth + 1
	default: // lower right, counted from the midline
		return 3*perQuadrant + tooth
	}
}

// fdiPosition is the inverse of universalPosition
func fdiPosition(pos, perQuadrant int) (quadrant, tooth int) {
	switch {
	case pos <= perQuadrant:
		return 1, perQuadrant - pos + 1
	case pos <= 2*perQuadrant:
		return 2, pos - perQuadrant
	case pos <= 3*perQuadrant:
		return 3, 3*perQuadrant - pos + 1
	default:
		return 4, pos - 3*perQuadrant
	}
}
